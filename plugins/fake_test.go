package plugins

import (
	"errors"
	"time"

	"github.com/linht/ismtx-manager/ismtx"
	"periph.io/x/conn/v3/gpio"
)

var errFakeTx = errors.New("spi transfer failed")

// fakeBus is a register file that survives across station operations, like
// the real chip does across transient bus opens.
type fakeBus struct {
	regs     [256]uint8
	opens    int
	closes   int
	released bool
	restores int
	levels   []gpio.Level
	failTx   bool
	txCount  int
	failFrom int // fail every transaction from this one on (1-based), 0 never
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.regs[ismtx.RegChipID] = ismtx.ChipIDValue
	return b
}

func (b *fakeBus) opener() BusOpener {
	return func(HardwareConfig) (BusCloser, error) {
		b.opens++
		return b, nil
	}
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.txCount++
	if b.failTx || (b.failFrom != 0 && b.txCount >= b.failFrom) {
		return errFakeTx
	}
	if b.released {
		return errors.New("spi port closed")
	}
	addr := w[0] & 0x7F
	if w[0]&0x80 != 0 {
		b.regs[addr] = w[1]
		return nil
	}
	r[1] = b.regs[addr]
	return nil
}

func (b *fakeBus) ReleaseData() (ismtx.DataLine, error) {
	b.released = true
	return b, nil
}

func (b *fakeBus) Restore(ismtx.BusConfig) error {
	b.released = false
	b.restores++
	return nil
}

func (b *fakeBus) Out(l gpio.Level) error {
	b.levels = append(b.levels, l)
	return nil
}

func (b *fakeBus) Close() error {
	b.closes++
	return nil
}

func (b *fakeBus) frequency() uint32 {
	raw := uint32(b.regs[ismtx.RegFreqHigh])<<16 |
		uint32(b.regs[ismtx.RegFreqMid])<<8 |
		uint32(b.regs[ismtx.RegFreqLow])
	return ismtx.RawToFrequency(raw)
}

type nopClock struct{}

func (nopClock) Hold(time.Duration) {}

func newTestStation(bus *fakeBus) *Station {
	s, err := NewStation(HardwareConfig{},
		WithBusOpener(bus.opener()),
		WithClock(nopClock{}))
	if err != nil {
		panic(err)
	}
	return s
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
