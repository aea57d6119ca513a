package plugins

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linht/ismtx-manager/ismtx"
)

// BusCloser is an ismtx.Bus that holds OS resources
type BusCloser interface {
	ismtx.Bus
	Close() error
}

// BusOpener opens the transmitter bus for one operation
type BusOpener func(cfg HardwareConfig) (BusCloser, error)

func openHardwareBus(cfg HardwareConfig) (BusCloser, error) {
	return OpenHardwareBus(cfg)
}

// Station serializes access to one ISM-TX transmitter. HTTP, WebSocket and
// MQTT callers all go through it so that nothing touches the SPI bus while a
// raw transmission has it in GPIO mode.
// Uses transient connections - the bus is opened and released for each operation
type Station struct {
	cfg        HardwareConfig
	busCfg     ismtx.BusConfig
	modulation ismtx.Modulation
	open       BusOpener
	clock      ismtx.SymbolClock
	history    HistoryStore

	mu sync.Mutex
}

// StationOption customizes a Station
type StationOption func(*Station)

// WithBusOpener replaces the hardware bus, used by tests and simulators
func WithBusOpener(open BusOpener) StationOption {
	return func(s *Station) { s.open = open }
}

// WithClock replaces the busy-wait symbol clock
func WithClock(c ismtx.SymbolClock) StationOption {
	return func(s *Station) { s.clock = c }
}

// WithHistory sets the transmission history store
func WithHistory(h HistoryStore) StationOption {
	return func(s *Station) { s.history = h }
}

// NewStation validates cfg and creates a station
func NewStation(cfg HardwareConfig, opts ...StationOption) (*Station, error) {
	cfg = cfg.withDefaults()

	busCfg, err := cfg.BusConfig()
	if err != nil {
		return nil, err
	}
	modulation, err := ismtx.ParseModulation(cfg.Modulation)
	if err != nil {
		return nil, err
	}

	s := &Station{
		cfg:        cfg,
		busCfg:     busCfg,
		modulation: modulation,
		open:       openHardwareBus,
		history:    NewMemoryHistory(100),
	}
	for _, opt := range opts {
		opt(s)
	}

	slog.Info("ISM-TX station configured",
		"spi_device", cfg.SPIDevice,
		"spi_speed", busCfg.Speed,
		"spi_mode", busCfg.Mode,
		"gpio_chip", cfg.GPIOChip,
		"data_pin", cfg.DataPin,
		"modulation", modulation)

	return s, nil
}

// Config returns the effective hardware configuration
func (s *Station) Config() HardwareConfig {
	return s.cfg
}

// Modulation returns the configured modulation
func (s *Station) Modulation() ismtx.Modulation {
	return s.modulation
}

// History returns the transmission history store
func (s *Station) History() HistoryStore {
	return s.history
}

// Do runs fn with exclusive use of a freshly opened transmitter
func (s *Station) Do(fn func(*ismtx.Device) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.open(s.cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev, err := ismtx.New(bus, ismtx.Config{
		Bus:        s.busCfg,
		Modulation: s.modulation,
		Clock:      s.clock,
	})
	if err != nil {
		return err
	}
	return fn(dev)
}

// AdapterInfo opens the bus once and reports what the adapter knows about itself
func (s *Station) AdapterInfo() (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.open(s.cfg)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	if i, ok := bus.(interface{ Info() map[string]interface{} }); ok {
		return i.Info(), nil
	}
	return map[string]interface{}{}, nil
}

// TxRequest asks for one transmission. Payload is hex encoded; with Raw set
// it is sent as is, otherwise it is framed behind Preamble and a length byte.
type TxRequest struct {
	Preamble uint8  `json:"preamble"`
	Payload  string `json:"payload"`
	Raw      bool   `json:"raw"`
}

// Transmit sends req and records the attempt in the history. Requests the
// driver would reject are refused before the bus is opened and are not
// recorded.
func (s *Station) Transmit(ctx context.Context, source string, req TxRequest) (Transmission, error) {
	data, err := hex.DecodeString(req.Payload)
	if err != nil {
		return Transmission{}, fmt.Errorf("%w: payload is not hex: %v", ismtx.ErrParameter, err)
	}

	if req.Raw {
		if len(data) > ismtx.MaxRawLength {
			return Transmission{}, fmt.Errorf("%w: %d bytes", ismtx.ErrBufferTooLong, len(data))
		}
	} else if _, err := (ismtx.Frame{Preamble: req.Preamble, Payload: data}).Bytes(); err != nil {
		return Transmission{}, err
	}

	t := Transmission{
		ID:       uuid.New().String(),
		Time:     time.Now(),
		Source:   source,
		Raw:      req.Raw,
		Preamble: req.Preamble,
		Data:     hex.EncodeToString(data),
		Bytes:    len(data),
	}
	if !req.Raw {
		t.Bytes += 2
	}

	start := time.Now()
	err = s.Do(func(d *ismtx.Device) error {
		if req.Raw {
			return d.TransmitRaw(data)
		}
		return d.TransmitData(req.Preamble, data)
	})
	t.Duration = time.Since(start)
	if err != nil {
		t.Error = err.Error()
	}

	if herr := s.history.Record(ctx, t); herr != nil {
		slog.Warn("Failed to record transmission", "id", t.ID, "error", herr)
	}
	return t, err
}
