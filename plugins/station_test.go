package plugins

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linht/ismtx-manager/ismtx"
)

func intPtr(v int) *int { return &v }

func TestNewStationConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HardwareConfig
		wantErr bool
	}{
		{"defaults", HardwareConfig{}, false},
		{"ask", HardwareConfig{Modulation: "ASK"}, false},
		{"gpio chip select active high", HardwareConfig{CSPin: intPtr(8), CSActiveHigh: true}, false},
		{"bad spi mode", HardwareConfig{SPIMode: 4}, true},
		{"active high without cs pin", HardwareConfig{CSActiveHigh: true}, true},
		{"bad modulation", HardwareConfig{Modulation: "ook"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStation(tt.cfg, WithBusOpener(newFakeBus().opener()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStation() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStationDefaults(t *testing.T) {
	s := newTestStation(newFakeBus())

	cfg := s.Config()
	if cfg.SPIDevice != "/dev/spidev0.0" || cfg.SPISpeed != 1000000 || cfg.GPIOChip != "gpiochip0" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if s.Modulation() != ismtx.ModulationFSK {
		t.Errorf("Modulation() = %v, want fsk", s.Modulation())
	}
}

func TestStationDoClosesBus(t *testing.T) {
	bus := newFakeBus()
	s := newTestStation(bus)

	for i := 0; i < 3; i++ {
		if err := s.Do(func(d *ismtx.Device) error { return d.CheckDevice() }); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if bus.opens != 3 || bus.closes != 3 {
		t.Errorf("opens = %d, closes = %d, want 3 each", bus.opens, bus.closes)
	}
}

func TestStationDoOpenError(t *testing.T) {
	openErr := errors.New("no such device")
	s, err := NewStation(HardwareConfig{}, WithBusOpener(func(HardwareConfig) (BusCloser, error) {
		return nil, openErr
	}))
	if err != nil {
		t.Fatal(err)
	}

	called := false
	err = s.Do(func(*ismtx.Device) error {
		called = true
		return nil
	})
	if !errors.Is(err, openErr) {
		t.Errorf("Do() error = %v, want %v", err, openErr)
	}
	if called {
		t.Error("fn called without a bus")
	}
}

func TestStationTransmit(t *testing.T) {
	bus := newFakeBus()
	s := newTestStation(bus)

	tx, err := s.Transmit(context.Background(), "test", TxRequest{Preamble: 0xAA, Payload: "0102"})
	if err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if tx.ID == "" || tx.Source != "test" || tx.Error != "" {
		t.Errorf("unexpected transmission %+v", tx)
	}
	if tx.Bytes != 4 {
		t.Errorf("Bytes = %d, want 4", tx.Bytes)
	}

	// 4 bytes of 16 symbols each, plus the sync header and final idle level
	if got := len(bus.levels); got < 4*16+1 {
		t.Errorf("only %d line levels driven", got)
	}
	if bus.restores != 1 || bus.released {
		t.Errorf("bus not restored: restores=%d released=%v", bus.restores, bus.released)
	}

	recent, err := s.History().Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != tx.ID {
		t.Errorf("history = %+v, want the transmission", recent)
	}
}

func TestStationTransmitRaw(t *testing.T) {
	bus := newFakeBus()
	s := newTestStation(bus)

	tx, err := s.Transmit(context.Background(), "test", TxRequest{Payload: "ff", Raw: true})
	if err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if tx.Bytes != 1 || !tx.Raw {
		t.Errorf("unexpected transmission %+v", tx)
	}
}

func TestStationTransmitErrors(t *testing.T) {
	tests := []struct {
		name      string
		req       TxRequest
		wantErr   error
		recorded  bool
		busOpened bool
	}{
		{
			name:    "not hex",
			req:     TxRequest{Payload: "zz"},
			wantErr: ismtx.ErrParameter,
		},
		{
			name:    "payload too long",
			req:     TxRequest{Payload: strings.Repeat("00", ismtx.MaxPayloadLength+1)},
			wantErr: ismtx.ErrPayloadTooLong,
		},
		{
			name:    "raw buffer too long",
			req:     TxRequest{Payload: strings.Repeat("00", ismtx.MaxRawLength+1), Raw: true},
			wantErr: ismtx.ErrBufferTooLong,
		},
		{
			name:      "bus failure",
			req:       TxRequest{Payload: "01"},
			wantErr:   errFakeTx,
			recorded:  true,
			busOpened: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus()
			bus.failTx = tt.busOpened
			s := newTestStation(bus)

			tx, err := s.Transmit(context.Background(), "test", tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transmit() error = %v, want %v", err, tt.wantErr)
			}
			if (bus.opens > 0) != tt.busOpened {
				t.Errorf("bus opens = %d", bus.opens)
			}
			if len(bus.levels) != 0 {
				t.Error("data line driven for a rejected request")
			}

			recent, _ := s.History().Recent(context.Background(), 0)
			if (len(recent) == 1) != tt.recorded {
				t.Errorf("history has %d entries", len(recent))
			}
			if tt.recorded && tx.Error == "" {
				t.Error("recorded transmission has no error")
			}
		})
	}
}
