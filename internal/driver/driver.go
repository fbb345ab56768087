package driver

import (
	"context"
	"time"
)

const (
	DefaultTickLength = time.Second * 2
)

// Manager is a component that wants periodic ticks, such as the
// matchmaking engine's wait-threshold policy.
type Manager interface {
	Tick(context.Context) error
}

type TickDriver struct {
	tickLength time.Duration
	managers   []Manager
}

func NewTickDriver(managers []Manager, opts ...TickDriverOpt) *TickDriver {
	d := &TickDriver{
		tickLength: DefaultTickLength,
		managers:   managers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *TickDriver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.Tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (d *TickDriver) Tick(ctx context.Context) error {
	for _, m := range d.managers {
		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
