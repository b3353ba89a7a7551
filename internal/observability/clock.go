package observability

import "github.com/jonboulle/clockwork"

// clock times computation stages and requests. Tests freeze it with SetClock.
var clock = clockwork.NewRealClock()

// Clock returns the time source for stage and request timing.
func Clock() clockwork.Clock { return clock }

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
