package ismtx

import "time"

// SymbolClock paces the bit-banged data line and the fixed delays around a
// transmission. Alternative backends, e.g. a hardware timer, only need to
// block for the requested duration.
type SymbolClock interface {
	Hold(d time.Duration)
}

// SpinClock busy-waits for holds shorter than a millisecond and sleeps for
// longer ones. The scheduler cannot wake a sleeping goroutine within a few
// microseconds, a spinning one never sleeps.
type SpinClock struct{}

func (SpinClock) Hold(d time.Duration) {
	if d >= time.Millisecond {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
