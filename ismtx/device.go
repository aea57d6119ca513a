package ismtx

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Modulation selects the keying scheme programmed by DefaultConfig.
type Modulation uint8

const (
	ModulationNone Modulation = iota
	ModulationASK
	ModulationFSK
)

func (m Modulation) String() string {
	switch m {
	case ModulationASK:
		return "ask"
	case ModulationFSK:
		return "fsk"
	default:
		return "none"
	}
}

// ParseModulation accepts "ask", "fsk" or "none", case-insensitively.
func ParseModulation(s string) (Modulation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ask":
		return ModulationASK, nil
	case "fsk":
		return ModulationFSK, nil
	case "", "none":
		return ModulationNone, nil
	}
	return ModulationNone, fmt.Errorf("%w: unknown modulation %q", ErrParameter, s)
}

// Default carrier and FSK deviation programmed by DefaultConfig
const (
	DefaultFrequency = 433_920_000
	DefaultDeviation = 40_000
)

// Soft reset timing
const (
	resetHold   = 100 * time.Millisecond
	resetSettle = time.Second
)

// BusConfig is the SPI setup captured when the device is created. The bus is
// put back into this state after every raw transmission.
type BusConfig struct {
	Speed        physic.Frequency
	Mode         spi.Mode
	CSActiveHigh bool
}

// Bus is the register transport. Besides plain transactions it can give the
// MOSI pin to the host as a GPIO output and take it back.
type Bus interface {
	// Tx performs one chip-select gated transaction; len(r) == len(w).
	Tx(w, r []byte) error
	// ReleaseData shuts the SPI peripheral down and returns MOSI as an output.
	ReleaseData() (DataLine, error)
	// Restore reopens the SPI peripheral with cfg and deselects the chip.
	Restore(cfg BusConfig) error
}

// DataLine is the MOSI pin while the host drives it directly.
type DataLine interface {
	Out(l gpio.Level) error
}

// Config holds the parameters for New.
type Config struct {
	Bus        BusConfig
	Modulation Modulation
	Clock      SymbolClock  // nil selects SpinClock
	Logger     *slog.Logger // nil selects slog.Default()
}

// Device is one ISM-TX transmitter. It is not safe for concurrent use: a raw
// transmission takes the SPI bus away for its whole duration.
type Device struct {
	bus        Bus
	busCfg     BusConfig
	modulation Modulation
	clock      SymbolClock
	log        *slog.Logger
}

// New creates a driver on bus. No register is touched.
func New(bus Bus, cfg Config) (*Device, error) {
	if bus == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = SpinClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Device{
		bus:        bus,
		busCfg:     cfg.Bus,
		modulation: cfg.Modulation,
		clock:      cfg.Clock,
		log:        cfg.Logger,
	}, nil
}

// SetModulation selects the scheme DefaultConfig will program.
func (d *Device) SetModulation(m Modulation) {
	d.modulation = m
}

// Modulation returns the selected scheme.
func (d *Device) Modulation() Modulation {
	return d.modulation
}

// BusConfig returns the SPI setup restored after raw transmissions.
func (d *Device) BusConfig() BusConfig {
	return d.busCfg
}

// WriteRegister writes a single register.
func (d *Device) WriteRegister(reg Register, value uint8) error {
	w := []byte{byte(reg) | writeFlag, value}
	r := make([]byte, len(w))
	if err := d.bus.Tx(w, r); err != nil {
		return fmt.Errorf("failed to write register 0x%02X: %w", uint8(reg), err)
	}
	return nil
}

// ReadRegister reads a single register.
func (d *Device) ReadRegister(reg Register) (uint8, error) {
	w := []byte{byte(reg) & readMask, 0x00}
	r := make([]byte, len(w))
	if err := d.bus.Tx(w, r); err != nil {
		return 0, fmt.Errorf("failed to read register 0x%02X: %w", uint8(reg), err)
	}
	return r[1], nil
}

// ReadAll reads every register from RegTxCfg0 to RegChipID.
func (d *Device) ReadAll() (map[Register]uint8, error) {
	regs := make(map[Register]uint8)
	for reg := RegTxCfg0; reg <= lastRegister; reg++ {
		v, err := d.ReadRegister(reg)
		if err != nil {
			return nil, err
		}
		regs[reg] = v
	}
	return regs, nil
}

// Version returns the chip identification register.
func (d *Device) Version() (uint8, error) {
	return d.ReadRegister(RegChipID)
}

// CheckDevice verifies that the chip answers with the expected ID.
func (d *Device) CheckDevice() error {
	id, err := d.Version()
	if err != nil {
		return err
	}
	if id != ChipIDValue {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChipID, id, ChipIDValue)
	}
	return nil
}

// SoftReset pulses the reset register and waits for the chip to come back.
func (d *Device) SoftReset() error {
	if err := d.WriteRegister(RegReset, ResetAssert); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	d.clock.Hold(resetHold)
	if err := d.WriteRegister(RegReset, ResetRelease); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	d.clock.Hold(resetSettle)
	return nil
}

// DefaultConfig programs the power-on settings for the selected modulation
// and tunes to DefaultFrequency. With FSK it also enables shaping and applies
// DefaultDeviation.
func (d *Device) DefaultConfig() error {
	var seq []regValue
	switch d.modulation {
	case ModulationASK:
		seq = askDefaults
	case ModulationFSK:
		seq = fskDefaults
	default:
		return ErrModulation
	}

	if err := d.writeSequence(seq); err != nil {
		return fmt.Errorf("default config: %w", err)
	}
	if err := d.SetFrequency(DefaultFrequency); err != nil {
		return fmt.Errorf("default config: %w", err)
	}
	if d.modulation != ModulationFSK {
		return nil
	}
	if err := d.SetConfig(ItemFSKShapeEnable, 1); err != nil {
		return fmt.Errorf("default config: %w", err)
	}
	if err := d.AdjustFrequencyDeviation(DefaultDeviation); err != nil {
		return fmt.Errorf("default config: %w", err)
	}
	return nil
}

// writeSequence stops at the first failing write. Earlier writes stay applied.
func (d *Device) writeSequence(seq []regValue) error {
	for i, rv := range seq {
		if err := d.WriteRegister(rv.reg, rv.value); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
