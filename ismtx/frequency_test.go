package ismtx

import (
	"errors"
	"testing"
)

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestFrequencyRoundTrip(t *testing.T) {
	d, _, _ := newTestDevice(ModulationFSK)
	for f := uint32(MinFrequency); f <= MaxFrequency; f += 1_000_000 {
		if err := d.SetFrequency(f); err != nil {
			t.Fatalf("SetFrequency(%d): %v", f, err)
		}
		got, err := d.GetFrequency()
		if err != nil {
			t.Fatalf("GetFrequency: %v", err)
		}
		if float64(absDiff(got, f)) > FrequencyStep {
			t.Fatalf("set %d, read back %d", f, got)
		}
	}
}

func TestSetFrequencyRegisters(t *testing.T) {
	d, bus, _ := newTestDevice(ModulationFSK)
	if err := d.SetFrequency(433_920_000); err != nil {
		t.Fatal(err)
	}

	want := []regValue{{RegFreqHigh, 0x1B}, {RegFreqMid, 0x1E}, {RegFreqLow, 0xB8}}
	if len(bus.writes) != len(want) {
		t.Fatalf("got writes %+v, want %+v", bus.writes, want)
	}
	for i := range want {
		if bus.writes[i] != want[i] {
			t.Fatalf("write %d: got %+v, want %+v", i, bus.writes[i], want[i])
		}
	}

	got, err := d.GetFrequency()
	if err != nil {
		t.Fatal(err)
	}
	if got < 433_920_000-244 || got > 433_920_000+244 {
		t.Fatalf("read back %d", got)
	}
}

func TestSetFrequencyRange(t *testing.T) {
	for _, f := range []uint32{0, MinFrequency - 1, MaxFrequency + 1, 2_400_000_000} {
		d, bus, _ := newTestDevice(ModulationFSK)
		err := d.SetFrequency(f)
		if !errors.Is(err, ErrFrequencyRange) || !errors.Is(err, ErrParameter) {
			t.Fatalf("SetFrequency(%d): got %v", f, err)
		}
		if bus.txCount != 0 {
			t.Fatalf("SetFrequency(%d) touched the bus", f)
		}
	}
	d, _, _ := newTestDevice(ModulationFSK)
	for _, f := range []uint32{MinFrequency, MaxFrequency} {
		if err := d.SetFrequency(f); err != nil {
			t.Fatalf("SetFrequency(%d): %v", f, err)
		}
	}
}

func TestDeviationValue(t *testing.T) {
	tests := map[string]struct {
		hz     uint32
		shaped bool
		want   uint32
	}{
		"40k shaped":     {40_000, true, 5},
		"40k unshaped":   {40_000, false, 41},
		"exact unshaped": {125_000, false, 128},
		"1 Hz rounds up": {1, false, 1},
		"zero":           {0, true, 0},
	}
	for name, tc := range tests {
		if got := DeviationValue(tc.hz, tc.shaped); got != tc.want {
			t.Errorf("%s: got %d want %d", name, got, tc.want)
		}
	}
}

func TestAdjustFrequencyDeviation(t *testing.T) {
	tests := []struct {
		name   string
		shaped uint8
		item   Item
		reg    Register
		want   uint8
	}{
		{"shaping off", 0, ItemFSKDeviation, RegFSKDev, 41},
		{"shaping on", 1, ItemFSKShapeDeviation, RegFSKShape, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, bus, _ := newTestDevice(ModulationFSK)
			if err := d.SetFrequency(433_920_000); err != nil {
				t.Fatal(err)
			}
			if err := d.SetConfig(ItemFSKShapeEnable, tc.shaped); err != nil {
				t.Fatal(err)
			}
			before, _ := d.GetFrequency()
			bus.writes = nil

			if err := d.AdjustFrequencyDeviation(40_000); err != nil {
				t.Fatal(err)
			}

			got, err := d.GetConfig(tc.item)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("%s = %d, want %d", tc.item, got, tc.want)
			}
			freq, _ := d.GetFrequency()
			if float64(absDiff(freq, before-40_000)) > FrequencyStep {
				t.Fatalf("carrier %d, want about %d", freq, before-40_000)
			}

			// carrier bytes first, deviation last
			if n := len(bus.writes); n != 4 || bus.writes[n-1].reg != tc.reg {
				t.Fatalf("unexpected write order %+v", bus.writes)
			}
			for i, reg := range []Register{RegFreqHigh, RegFreqMid, RegFreqLow} {
				if bus.writes[i].reg != reg {
					t.Fatalf("write %d went to 0x%02X", i, uint8(bus.writes[i].reg))
				}
			}
		})
	}
}

func TestAdjustFrequencyDeviationTooLarge(t *testing.T) {
	d, bus, _ := newTestDevice(ModulationFSK)
	if err := d.SetFrequency(433_920_000); err != nil {
		t.Fatal(err)
	}
	bus.writes = nil

	err := d.AdjustFrequencyDeviation(250_000)
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("got %v, want ErrValueTooLarge", err)
	}
	if len(bus.writes) != 0 {
		t.Fatalf("carrier moved before the deviation was rejected: %+v", bus.writes)
	}
}

func TestAdjustFrequencyDeviationBelowBand(t *testing.T) {
	d, _, _ := newTestDevice(ModulationFSK)
	if err := d.SetFrequency(MinFrequency); err != nil {
		t.Fatal(err)
	}
	if err := d.AdjustFrequencyDeviation(40_000); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("got %v, want ErrFrequencyRange", err)
	}
}
