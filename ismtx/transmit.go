package ismtx

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Delay units used on the data line
const (
	delay10us = 10 * time.Microsecond
	delay22us = 22 * time.Microsecond
	delay50us = 50 * time.Microsecond
	delay80us = 80 * time.Microsecond
)

// SymbolWidth is how long one Manchester symbol is held on the line.
const SymbolWidth = symbolUnits * delay50us

const symbolUnits = 4

// pulse drives level for count holds of unit.
type pulse struct {
	level gpio.Level
	unit  time.Duration
	count int
}

func (p pulse) duration() time.Duration {
	return p.unit * time.Duration(p.count)
}

// syncHeader is sent before the first symbol of every raw transmission so the
// chip can lock onto the host's symbol timing.
var syncHeader = []pulse{
	{gpio.Low, delay50us, 2},
	{gpio.High, delay10us, 3},
	{gpio.Low, delay80us, 4},
	{gpio.High, delay80us, 4},
	{gpio.Low, delay80us, 4},
	{gpio.High, delay80us, 4},
	{gpio.Low, delay80us, 4},
	{gpio.High, delay80us, 4},
	{gpio.Low, delay10us, 1},
}

// HeaderDuration is the length of the sync header.
func HeaderDuration() time.Duration {
	var total time.Duration
	for _, p := range syncHeader {
		total += p.duration()
	}
	return total
}

// TransmitDuration is how long TransmitRaw keeps the line for an n byte
// buffer, excluding the SPI command writes.
func TransmitDuration(n int) time.Duration {
	return HeaderDuration() + time.Duration(n*8*2)*SymbolWidth
}

// TransmitRaw Manchester-encodes buf and bit-bangs it on the SPI data line.
// The SPI peripheral is closed while the symbols are sent and reopened with
// the configuration captured by New, even when sending fails.
func (d *Device) TransmitRaw(buf []byte) error {
	if len(buf) > MaxRawLength {
		return fmt.Errorf("%w: %d bytes", ErrBufferTooLong, len(buf))
	}

	if err := d.armTransparent(); err != nil {
		return err
	}

	symbols := EncodeManchester(Bits(buf))

	line, err := d.bus.ReleaseData()
	if err != nil {
		return errors.Join(fmt.Errorf("failed to release data line: %w", err), d.restoreBus())
	}

	start := time.Now()
	err = d.shiftOut(line, symbols)
	if rerr := d.restoreBus(); rerr != nil {
		d.log.Warn("SPI restore after transmission failed", "error", rerr)
		err = errors.Join(err, rerr)
	}
	if err != nil {
		return err
	}

	d.log.Debug("Raw transmission sent",
		"bytes", len(buf),
		"symbols", len(symbols),
		"duration", time.Since(start))
	return nil
}

// armTransparent switches the chip to take transmit data from SDIO and then
// stops it from driving the pin.
func (d *Device) armTransparent() error {
	if err := d.WriteRegister(RegCommand, CmdTransparent); err != nil {
		return fmt.Errorf("arm transparent mode: %w", err)
	}
	d.clock.Hold(delay22us)
	if err := d.WriteRegister(RegCommand, CmdTxStart); err != nil {
		return fmt.Errorf("arm transparent mode: %w", err)
	}

	if err := d.WriteRegister(RegSDIOCfg, SDIODataIn); err != nil {
		return fmt.Errorf("hand over data line: %w", err)
	}
	if err := d.WriteRegister(RegCommand, CmdReleaseSDIO); err != nil {
		return fmt.Errorf("hand over data line: %w", err)
	}
	return nil
}

func (d *Device) shiftOut(line DataLine, symbols []uint8) error {
	for i, p := range syncHeader {
		if err := line.Out(p.level); err != nil {
			return fmt.Errorf("sync header pulse %d: %w", i, err)
		}
		for n := 0; n < p.count; n++ {
			d.clock.Hold(p.unit)
		}
	}

	for i, s := range symbols {
		if err := line.Out(gpio.Level(s == 1)); err != nil {
			return fmt.Errorf("symbol %d: %w", i, err)
		}
		for n := 0; n < symbolUnits; n++ {
			d.clock.Hold(delay50us)
		}
	}

	if err := line.Out(gpio.Low); err != nil {
		return fmt.Errorf("idle data line: %w", err)
	}
	return nil
}

func (d *Device) restoreBus() error {
	if err := d.bus.Restore(d.busCfg); err != nil {
		return fmt.Errorf("failed to restore SPI: %w", err)
	}
	return nil
}
