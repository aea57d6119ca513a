package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/ismtx-manager/ismtx"
)

func TestProfileValidate(t *testing.T) {
	tests := map[string]struct {
		profile Profile
		wantErr error
	}{
		"minimal fsk": {
			profile: Profile{Name: "fsk", Modulation: "fsk"},
		},
		"full ask": {
			profile: Profile{
				Name:       "ask-868",
				Modulation: "ask",
				Frequency:  868_300_000,
				Bitrate:    4800,
				Items:      map[string]uint8{"power_level": 3, "crc_enable": 1},
			},
		},
		"bad name": {
			profile: Profile{Name: "../etc", Modulation: "fsk"},
			wantErr: ismtx.ErrParameter,
		},
		"no modulation": {
			profile: Profile{Name: "x"},
			wantErr: ismtx.ErrModulation,
		},
		"frequency out of range": {
			profile: Profile{Name: "x", Modulation: "fsk", Frequency: 100_000_000},
			wantErr: ismtx.ErrFrequencyRange,
		},
		"unknown item": {
			profile: Profile{Name: "x", Modulation: "fsk", Items: map[string]uint8{"volume": 1}},
			wantErr: ismtx.ErrUnknownItem,
		},
		"item too large": {
			profile: Profile{Name: "x", Modulation: "fsk", Items: map[string]uint8{"crc_enable": 2}},
			wantErr: ismtx.ErrValueTooLarge,
		},
		"bitrate too low": {
			profile: Profile{Name: "x", Modulation: "fsk", Bitrate: 10},
			wantErr: ismtx.ErrBitrateRange,
		},
		"deviation below band edge": {
			profile: Profile{Name: "x", Modulation: "ask", Frequency: 250_010_000, Deviation: 20_000},
			wantErr: ismtx.ErrFrequencyRange,
		},
		"shaped deviation too large": {
			profile: Profile{Name: "x", Modulation: "fsk", Deviation: 2_000_000},
			wantErr: ismtx.ErrValueTooLarge,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProfileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	p := &Profile{
		Name:       "beacon",
		Modulation: "fsk",
		Frequency:  433_920_000,
		Deviation:  20_000,
		Bitrate:    9600,
		Items:      map[string]uint8{"power_level": 7},
	}

	if err := SaveProfile(path, p); err != nil {
		t.Fatal(err)
	}
	got, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != p.Name || got.Frequency != p.Frequency || got.Bitrate != p.Bitrate || got.Items["power_level"] != 7 {
		t.Errorf("LoadProfile() = %+v, want %+v", got, p)
	}

	if err := SaveProfile(path, &Profile{Name: "beacon"}); err == nil {
		t.Error("invalid profile was saved")
	}
}

func TestProfileApply(t *testing.T) {
	bus := newFakeBus()
	s := newTestStation(bus)
	p := &Profile{
		Name:       "beacon",
		Modulation: "ask",
		Frequency:  868_300_000,
		Bitrate:    9600,
		Items:      map[string]uint8{"crc_enable": 1},
	}

	if err := s.Do(p.Apply); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got := bus.frequency(); float64(absDiff(got, 868_300_000)) > ismtx.FrequencyStep {
		t.Errorf("frequency = %d", got)
	}

	var crc, mod uint8
	err := s.Do(func(d *ismtx.Device) error {
		var err error
		if crc, err = d.GetConfig(ismtx.ItemCRCEnable); err != nil {
			return err
		}
		mod, err = d.GetConfig(ismtx.ItemModulation)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if crc != 1 {
		t.Errorf("crc_enable = %d, want 1", crc)
	}
	if mod != 0 {
		t.Errorf("modulation field = %d, want ASK", mod)
	}
}

func TestProfileApplyDeviation(t *testing.T) {
	tests := map[string]struct {
		profile Profile
		want    uint32
	}{
		"default carrier": {
			profile: Profile{Name: "x", Modulation: "fsk", Deviation: 20_000},
			want:    ismtx.DefaultFrequency - 20_000,
		},
		"explicit carrier": {
			profile: Profile{Name: "x", Modulation: "fsk", Frequency: 868_300_000, Deviation: 30_000},
			want:    868_300_000 - 30_000,
		},
		"no deviation keeps fsk default": {
			profile: Profile{Name: "x", Modulation: "fsk"},
			want:    ismtx.DefaultFrequency - ismtx.DefaultDeviation,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			bus := newFakeBus()
			s := newTestStation(bus)

			if err := s.Do(tt.profile.Apply); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got := bus.frequency(); float64(absDiff(got, tt.want)) > 2*ismtx.FrequencyStep {
				t.Errorf("carrier = %d, want about %d", got, tt.want)
			}
		})
	}
}

func TestProfileApplyRejectsBeforeWriting(t *testing.T) {
	bus := newFakeBus()
	s := newTestStation(bus)
	p := &Profile{Name: "x", Modulation: "ask", Frequency: 250_000_000, Deviation: 1_000}

	if err := s.Do(p.Apply); !errors.Is(err, ismtx.ErrFrequencyRange) {
		t.Fatalf("Apply() error = %v, want %v", err, ismtx.ErrFrequencyRange)
	}
	if bus.txCount != 0 {
		t.Errorf("%d transactions before the profile was rejected", bus.txCount)
	}
}

func TestProfilesRoutes(t *testing.T) {
	dir := t.TempDir()
	bus := newFakeBus()
	p, err := NewProfilesPlugin(dir, newTestStation(bus))
	if err != nil {
		t.Fatal(err)
	}
	app := fiber.New()
	p.RegisterRoutes(app)

	steps := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"missing", "GET", "/api/profiles/beacon", "", 404},
		{"save", "PUT", "/api/profiles/beacon", `{"modulation":"fsk","frequency":433920000,"bitrate":4800}`, 200},
		{"save invalid", "PUT", "/api/profiles/bad", `{"modulation":"fsk","frequency":1}`, 400},
		{"get", "GET", "/api/profiles/beacon", "", 200},
		{"list", "GET", "/api/profiles/", "", 200},
		{"apply", "POST", "/api/profiles/beacon/apply", "", 200},
		{"delete", "DELETE", "/api/profiles/beacon", "", 200},
		{"delete again", "DELETE", "/api/profiles/beacon", "", 404},
	}

	for _, st := range steps {
		status, resp := do(t, app, st.method, st.path, st.body)
		if status != st.wantStatus {
			t.Fatalf("%s: status = %d, want %d (error %q)", st.name, status, st.wantStatus, resp.Error)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "bad.yaml")); !os.IsNotExist(err) {
		t.Error("invalid profile written to disk")
	}
}
