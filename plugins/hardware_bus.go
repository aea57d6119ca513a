package plugins

import (
	"errors"
	"fmt"

	"github.com/linht/ismtx-manager/ismtx"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// HardwareConfig holds the ISM-TX wiring
type HardwareConfig struct {
	SPIDevice    string `yaml:"spi_device" json:"spi_device"`
	SPISpeed     uint32 `yaml:"spi_speed" json:"spi_speed"`
	SPIMode      int    `yaml:"spi_mode" json:"spi_mode"`
	GPIOChip     string `yaml:"gpio_chip" json:"gpio_chip"`
	CSPin        *int   `yaml:"cs_pin" json:"cs_pin,omitempty"` // nil: SPI controller drives CS
	CSActiveHigh bool   `yaml:"cs_active_high" json:"cs_active_high"`
	DataPin      int    `yaml:"data_pin" json:"data_pin"`
	Modulation   string `yaml:"modulation" json:"modulation"`
}

// withDefaults fills in unset values
func (c HardwareConfig) withDefaults() HardwareConfig {
	if c.SPIDevice == "" {
		c.SPIDevice = "/dev/spidev0.0"
	}
	if c.SPISpeed == 0 {
		c.SPISpeed = 1000000 // Default 1 MHz
	}
	if c.GPIOChip == "" {
		c.GPIOChip = "gpiochip0"
	}
	if c.DataPin == 0 {
		c.DataPin = 10 // MOSI on the Raspberry Pi header
	}
	if c.Modulation == "" {
		c.Modulation = "fsk"
	}
	return c
}

// BusConfig converts the wiring into the SPI setup the driver restores
func (c HardwareConfig) BusConfig() (ismtx.BusConfig, error) {
	if c.SPIMode < 0 || c.SPIMode > 3 {
		return ismtx.BusConfig{}, fmt.Errorf("invalid SPI mode %d", c.SPIMode)
	}
	if c.CSActiveHigh && c.CSPin == nil {
		return ismtx.BusConfig{}, fmt.Errorf("cs_active_high requires cs_pin")
	}
	return ismtx.BusConfig{
		Speed:        physic.Frequency(c.SPISpeed) * physic.Hertz,
		Mode:         spi.Mode(c.SPIMode),
		CSActiveHigh: c.CSActiveHigh,
	}, nil
}

// Validate checks that the SPI device and GPIO chip can be opened
func (c HardwareConfig) Validate() error {
	c = c.withDefaults()
	return errors.Join(ValidateSPIDevice(c.SPIDevice), ValidateGPIOChip(c.GPIOChip))
}

// HardwareBus implements ismtx.Bus on a Linux spidev port plus a GPIO chip.
// During a raw transmission the spidev port is closed and the MOSI pin is
// claimed through the GPIO character device.
type HardwareBus struct {
	spi  spiPort
	gpio busLines
}

// spiPort is the part of SPIDevice the bus uses
type spiPort interface {
	Transfer(tx, rx []byte) error
	Reopen(cfg ismtx.BusConfig) error
	IsOpen() bool
	DeviceInfo() string
	Close() error
}

// busLines is the part of GPIOController the bus uses
type busLines interface {
	Select() error
	Deselect() error
	RequestData() (*DataLine, error)
	ReleaseData() error
	HasChipSelect() bool
	Info() string
	Close() error
}

// OpenHardwareBus opens the SPI port and GPIO lines described by cfg
func OpenHardwareBus(cfg HardwareConfig) (*HardwareBus, error) {
	busCfg, err := cfg.BusConfig()
	if err != nil {
		return nil, err
	}

	csPin := -1
	var flags spi.Mode
	if cfg.CSPin != nil {
		csPin = *cfg.CSPin
		flags = spi.NoCS
	}

	gpio, err := NewGPIOController(cfg.GPIOChip, csPin, cfg.CSActiveHigh, cfg.DataPin)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GPIO: %w", err)
	}

	spiDev, err := NewSPIDevice(cfg.SPIDevice, busCfg, flags)
	if err != nil {
		gpio.Close()
		return nil, fmt.Errorf("failed to initialize SPI: %w", err)
	}

	return &HardwareBus{spi: spiDev, gpio: gpio}, nil
}

// Tx implements ismtx.Bus
func (b *HardwareBus) Tx(w, r []byte) error {
	if err := b.gpio.Select(); err != nil {
		return err
	}
	err := b.spi.Transfer(w, r)
	return errors.Join(err, b.gpio.Deselect())
}

// ReleaseData implements ismtx.Bus
func (b *HardwareBus) ReleaseData() (ismtx.DataLine, error) {
	if err := b.spi.Close(); err != nil {
		return nil, fmt.Errorf("failed to close SPI port: %w", err)
	}
	line, err := b.gpio.RequestData()
	if err != nil {
		return nil, err
	}
	return line, nil
}

// Restore implements ismtx.Bus. Every step is attempted even when an
// earlier one fails.
func (b *HardwareBus) Restore(cfg ismtx.BusConfig) error {
	return errors.Join(
		b.gpio.ReleaseData(),
		b.spi.Reopen(cfg),
		b.gpio.Deselect(),
	)
}

// Info describes the SPI and GPIO side of the bus
func (b *HardwareBus) Info() map[string]interface{} {
	return map[string]interface{}{
		"spi":      b.spi.DeviceInfo(),
		"spi_open": b.spi.IsOpen(),
		"gpio":     b.gpio.Info(),
		"gpio_cs":  b.gpio.HasChipSelect(),
	}
}

// Close releases SPI and GPIO resources
func (b *HardwareBus) Close() error {
	return errors.Join(b.spi.Close(), b.gpio.Close())
}
