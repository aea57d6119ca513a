package plugins

import (
	"fmt"

	"github.com/linht/ismtx-manager/ismtx"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIDevice represents an SPI device using periph.io
type SPIDevice struct {
	conn   spi.Conn
	port   spi.PortCloser
	device string
	cfg    ismtx.BusConfig
	flags  spi.Mode // added to every Connect, e.g. spi.NoCS
}

// NewSPIDevice opens and initializes an SPI device using periph.io
func NewSPIDevice(device string, cfg ismtx.BusConfig, flags spi.Mode) (*SPIDevice, error) {
	// Initialize periph.io host
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	s := &SPIDevice{device: device, flags: flags}
	if err := s.open(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SPIDevice) open(cfg ismtx.BusConfig) error {
	port, err := spireg.Open(s.device)
	if err != nil {
		return fmt.Errorf("failed to open SPI device %s: %w", s.device, err)
	}

	conn, err := port.Connect(cfg.Speed, cfg.Mode|s.flags, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("failed to connect to SPI device: %w", err)
	}

	s.conn = conn
	s.port = port
	s.cfg = cfg
	return nil
}

// Close closes the SPI device
func (s *SPIDevice) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.conn = nil
	return err
}

// Transfer performs a full-duplex SPI transfer
func (s *SPIDevice) Transfer(tx []byte, rx []byte) error {
	if len(tx) != len(rx) {
		return fmt.Errorf("tx and rx buffers must be the same length")
	}

	if s.conn == nil {
		return fmt.Errorf("SPI device not open")
	}

	if err := s.conn.Tx(tx, rx); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}

	return nil
}

// DeviceInfo provides information about the SPI device
func (s *SPIDevice) DeviceInfo() string {
	if s.conn == nil {
		return fmt.Sprintf("Device: %s (closed)", s.device)
	}
	return fmt.Sprintf("Device: %s, Speed: %s, Mode: %s", s.device, s.cfg.Speed, s.cfg.Mode)
}

// IsOpen returns true if the SPI device is open
func (s *SPIDevice) IsOpen() bool {
	return s.conn != nil && s.port != nil
}

// Reopen closes the device if needed and opens it again with cfg
func (s *SPIDevice) Reopen(cfg ismtx.BusConfig) error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close device during reopen: %w", err)
	}
	return s.open(cfg)
}

// ValidateSPIDevice checks if the device can be opened
func ValidateSPIDevice(device string) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return fmt.Errorf("SPI device %s not accessible: %w", device, err)
	}
	defer port.Close()

	return nil
}
