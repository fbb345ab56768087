package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-lobby/internal/game"
	"github.com/pixil98/go-lobby/internal/matchmaking"
	"github.com/pixil98/go-lobby/internal/session"
)

type MatchmakerConfig struct {
	// PoolKey partitions ticket queues by this filter attribute, for
	// example "mode". Empty means a single queue.
	PoolKey string `json:"pool_key,omitempty"`
	// CreateAfter is how long a ticket may wait before the engine
	// creates a game for it instead. Empty or "0s" disables creation.
	CreateAfter string `json:"create_after,omitempty"`
	// CreateCapacity is the slot count of games created by the wait
	// policy.
	CreateCapacity int `json:"create_capacity,omitempty"`
	// TickInterval is how often the wait policy is evaluated.
	TickInterval string `json:"tick_interval,omitempty"`
}

func (c *MatchmakerConfig) validate() error {
	el := errors.NewErrorList()

	if c.CreateAfter != "" {
		if _, err := time.ParseDuration(c.CreateAfter); err != nil {
			el.Add(fmt.Errorf("parsing create_after: %w", err))
		}
	}
	if c.TickInterval != "" {
		d, err := time.ParseDuration(c.TickInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing tick_interval: %w", err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("tick_interval must be at least 1 second"))
		}
	}
	if c.CreateCapacity < 0 {
		el.Add(fmt.Errorf("create_capacity must not be negative"))
	}

	return el.Err()
}

func (c *MatchmakerConfig) BuildEngine(registry *game.Registry, placement *session.Manager) (*matchmaking.Engine, error) {
	var opts []matchmaking.Option
	if c.PoolKey != "" {
		opts = append(opts, matchmaking.WithPoolKey(c.PoolKey))
	}
	if c.CreateAfter != "" {
		d, err := time.ParseDuration(c.CreateAfter)
		if err != nil {
			return nil, fmt.Errorf("parsing create_after: %w", err)
		}
		if d > 0 {
			capacity := c.CreateCapacity
			if capacity == 0 {
				capacity = 4
			}
			opts = append(opts, matchmaking.WithCreateAfter(d, capacity))
		}
	}

	return matchmaking.NewEngine(registry, placement, opts...), nil
}

func (c *MatchmakerConfig) TickLength() (time.Duration, error) {
	if c.TickInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.TickInterval)
}
