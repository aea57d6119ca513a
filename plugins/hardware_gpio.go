package plugins

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
)

// GPIOController manages the ISM-TX chip select and data lines
type GPIOController struct {
	chip     *gpiocdev.Chip
	csLine   *gpiocdev.Line
	dataLine *gpiocdev.Line
	chipPath string
	csPin    int // -1 when the SPI controller drives chip select
	dataPin  int
	csHigh   bool
}

// NewGPIOController opens chipPath and, if csPin >= 0, claims the chip
// select line in its inactive state. The data pin is only claimed while a raw
// transmission runs.
func NewGPIOController(chipPath string, csPin int, csActiveHigh bool, dataPin int) (*GPIOController, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipPath, err)
	}

	controller := &GPIOController{
		chip:     chip,
		chipPath: chipPath,
		csPin:    csPin,
		dataPin:  dataPin,
		csHigh:   csActiveHigh,
	}

	if csPin < 0 {
		return controller, nil
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("ismtx-cs"),
	}
	if !csActiveHigh {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	csLine, err := chip.RequestLine(csPin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request chip select pin %d: %w", csPin, err)
	}
	controller.csLine = csLine

	return controller, nil
}

// Close releases all GPIO resources
func (g *GPIOController) Close() error {
	var errs []error

	if err := g.ReleaseData(); err != nil {
		errs = append(errs, err)
	}

	if g.csLine != nil {
		if err := g.csLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close chip select line: %w", err))
		}
		g.csLine = nil
	}

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		g.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing GPIO: %v", errs)
	}

	return nil
}

// HasChipSelect reports whether chip select is driven from GPIO
func (g *GPIOController) HasChipSelect() bool {
	return g.csLine != nil
}

// Select activates chip select. Line values are logical, the active-low
// inversion is done by the kernel.
func (g *GPIOController) Select() error {
	if g.csLine == nil {
		return nil
	}
	if err := g.csLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to assert chip select: %w", err)
	}
	return nil
}

// Deselect releases chip select
func (g *GPIOController) Deselect() error {
	if g.csLine == nil {
		return nil
	}
	if err := g.csLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to release chip select: %w", err)
	}
	return nil
}

// RequestData claims the SPI data pin as a plain output, initially low
func (g *GPIOController) RequestData() (*DataLine, error) {
	if g.chip == nil {
		return nil, fmt.Errorf("GPIO chip not open")
	}
	if g.dataLine != nil {
		return &DataLine{line: g.dataLine}, nil
	}

	line, err := g.chip.RequestLine(
		g.dataPin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("ismtx-data"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to request data pin %d: %w", g.dataPin, err)
	}
	g.dataLine = line
	return &DataLine{line: line}, nil
}

// ReleaseData gives the data pin back so the SPI controller can use it
func (g *GPIOController) ReleaseData() error {
	if g.dataLine == nil {
		return nil
	}
	err := g.dataLine.Close()
	g.dataLine = nil
	if err != nil {
		return fmt.Errorf("failed to close data line: %w", err)
	}
	return nil
}

// Info returns information about the GPIO controller
func (g *GPIOController) Info() string {
	if g.chip == nil {
		return fmt.Sprintf("GPIO: %s (closed)", g.chipPath)
	}

	cs := "spi"
	if g.csLine != nil {
		cs = fmt.Sprintf("%d (active high: %v)", g.csPin, g.csHigh)
	}
	return fmt.Sprintf("GPIO: %s (%s, %s), CS Pin: %s, Data Pin: %d",
		g.chipPath, g.chip.Name, g.chip.Label, cs, g.dataPin)
}

// DataLine drives the SPI data pin while it is claimed as GPIO
type DataLine struct {
	line *gpiocdev.Line
}

// Out implements ismtx.DataLine
func (d *DataLine) Out(l gpio.Level) error {
	value := 0
	if l == gpio.High {
		value = 1
	}
	return d.line.SetValue(value)
}

// ValidateGPIOChip checks if the GPIO chip exists and is accessible
func ValidateGPIOChip(chipPath string) error {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return fmt.Errorf("cannot access GPIO chip %s: %w", chipPath, err)
	}
	defer chip.Close()

	if chip.Name == "" {
		return fmt.Errorf("GPIO chip %s has invalid name", chipPath)
	}

	return nil
}
