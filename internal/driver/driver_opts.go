package driver

import "time"

type TickDriverOpt func(*TickDriver)

// WithTickLength sets the interval between ticks.
func WithTickLength(d time.Duration) TickDriverOpt {
	return func(t *TickDriver) {
		t.tickLength = d
	}
}
