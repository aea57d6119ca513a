package ismtx

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var errBus = errors.New("bus fault")

// fakeBus is an in-memory register file. Every transaction, handoff and
// restore is appended to events.
type fakeBus struct {
	regs     [256]uint8
	writes   []regValue
	events   []string
	txCount  int
	failTx   int // fail this transaction (1-based), 0 never
	released bool
	restored []BusConfig

	releaseErr error
	restoreErr error
	line       *fakeLine
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.line = &fakeLine{bus: b}
	return b
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.txCount++
	if b.failTx != 0 && b.txCount == b.failTx {
		return errBus
	}
	if b.released {
		return errors.New("spi port closed")
	}
	if len(w) != len(r) {
		return errors.New("tx and rx buffers must be the same length")
	}
	addr := w[0] & readMask
	if w[0]&writeFlag != 0 {
		b.regs[addr] = w[1]
		b.writes = append(b.writes, regValue{Register(addr), w[1]})
		b.events = append(b.events, fmt.Sprintf("w%02X=%02X", addr, w[1]))
		return nil
	}
	r[1] = b.regs[addr]
	return nil
}

func (b *fakeBus) ReleaseData() (DataLine, error) {
	b.events = append(b.events, "release")
	if b.releaseErr != nil {
		return nil, b.releaseErr
	}
	b.released = true
	return b.line, nil
}

func (b *fakeBus) Restore(cfg BusConfig) error {
	b.events = append(b.events, "restore")
	b.restored = append(b.restored, cfg)
	if b.restoreErr != nil {
		return b.restoreErr
	}
	b.released = false
	return nil
}

// writesTo lists the values written to reg in order.
func (b *fakeBus) writesTo(reg Register) []uint8 {
	var out []uint8
	for _, w := range b.writes {
		if w.reg == reg {
			out = append(out, w.value)
		}
	}
	return out
}

type fakeLine struct {
	bus    *fakeBus
	levels []gpio.Level
	failAt int // fail this Out call (1-based), 0 never
}

func (l *fakeLine) Out(level gpio.Level) error {
	if !l.bus.released {
		return errors.New("data line not released")
	}
	l.levels = append(l.levels, level)
	if l.failAt != 0 && len(l.levels) == l.failAt {
		return errors.New("gpio write failed")
	}
	return nil
}

// recordClock returns immediately and remembers every hold.
type recordClock struct {
	holds []time.Duration
}

func (c *recordClock) Hold(d time.Duration) {
	c.holds = append(c.holds, d)
}

func (c *recordClock) total() time.Duration {
	var t time.Duration
	for _, d := range c.holds {
		t += d
	}
	return t
}

var testBusConfig = BusConfig{
	Speed: 2 * physic.MegaHertz,
	Mode:  spi.Mode0,
}

func newTestDevice(m Modulation) (*Device, *fakeBus, *recordClock) {
	bus := newFakeBus()
	clock := &recordClock{}
	d, err := New(bus, Config{Bus: testBusConfig, Modulation: m, Clock: clock})
	if err != nil {
		panic(err)
	}
	return d, bus, clock
}
