// Package matchmaking queues searching players and matches them
// against the game registry. Queues are strict FIFO per pool: an older
// ticket is always served before a newer one when both could take the
// same game.
package matchmaking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixil98/go-lobby/internal/game"
)

// defaultPool holds tickets whose filter does not name the pool key.
const defaultPool = "default"

// Ticket is one player's outstanding search.
type Ticket struct {
	ID        string
	Player    game.PlayerID
	Session   string
	Name      string
	Filter    game.Attrs
	SlotAttrs game.Attrs
	CreatedAt time.Time
}

// Placement is told when a ticket lands in a game, either by matching
// an existing game or by the wait-threshold creation policy. The
// callback runs outside the engine's lock.
type Placement interface {
	OnMatched(t Ticket, g *game.Game, slot int)
}

// Engine owns the ticket queues. Its lock is independent of the
// registry's and of any game's; a game lock is only taken for the
// instant of a join attempt.
type Engine struct {
	registry  *game.Registry
	placement Placement

	poolKey        string
	createAfter    time.Duration
	createCapacity int

	mu    sync.Mutex
	pools map[string][]*Ticket

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPoolKey partitions queues by the given filter attribute.
func WithPoolKey(key string) Option {
	return func(e *Engine) { e.poolKey = key }
}

// WithCreateAfter enables the creation policy: a ticket queued longer
// than d gets a fresh game of the given capacity instead of waiting
// forever. A zero duration disables it.
func WithCreateAfter(d time.Duration, capacity int) Option {
	return func(e *Engine) {
		e.createAfter = d
		e.createCapacity = capacity
	}
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine matching tickets against registry and
// reporting placements to placement.
func NewEngine(registry *game.Registry, placement Placement, opts ...Option) *Engine {
	e := &Engine{
		registry:       registry,
		placement:      placement,
		createCapacity: 4,
		pools:          make(map[string][]*Ticket),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) pool(filter game.Attrs) string {
	if e.poolKey == "" {
		return defaultPool
	}
	if v, ok := filter.Get(e.poolKey); ok {
		return v
	}
	return defaultPool
}

// Enqueue registers a search ticket and immediately attempts to serve
// the ticket's pool oldest-first. Returns the ticket id.
func (e *Engine) Enqueue(t Ticket) string {
	t.ID = uuid.NewString()
	t.CreatedAt = e.now()
	pool := e.pool(t.Filter)

	e.mu.Lock()
	e.pools[pool] = append(e.pools[pool], &t)
	e.mu.Unlock()

	slog.Info("matchmaking ticket queued", "ticket", t.ID, "player", t.Player, "pool", pool)
	e.runPool(pool)
	return t.ID
}

// GameChanged wakes matching after a game was created or mutated.
// Every pool is served; the attribute filters decide eligibility.
func (e *Engine) GameChanged(game.ID) {
	e.runAll()
}

func (e *Engine) runAll() {
	e.mu.Lock()
	pools := make([]string, 0, len(e.pools))
	for name := range e.pools {
		pools = append(pools, name)
	}
	e.mu.Unlock()

	for _, name := range pools {
		e.runPool(name)
	}
}

// Cancel removes every ticket held by the session. Idempotent; safe to
// call for sessions that never searched.
func (e *Engine) Cancel(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, queue := range e.pools {
		kept := queue[:0]
		for _, t := range queue {
			if t.Session != sessionID {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(e.pools, name)
		} else {
			e.pools[name] = kept
		}
	}
}

// Queued returns the number of outstanding tickets.
func (e *Engine) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, queue := range e.pools {
		n += len(queue)
	}
	return n
}

type placed struct {
	ticket Ticket
	game   *game.Game
	slot   int
}

// runPool serves a pool oldest-first. Matched tickets leave the queue
// under the engine lock; placement callbacks run after it is released.
func (e *Engine) runPool(pool string) {
	var placements []placed

	e.mu.Lock()
	queue := e.pools[pool]
	kept := queue[:0]
	for _, t := range queue {
		g, slot, ok := e.tryMatch(t)
		if !ok {
			kept = append(kept, t)
			continue
		}
		placements = append(placements, placed{ticket: *t, game: g, slot: slot})
	}
	if len(kept) == 0 {
		delete(e.pools, pool)
	} else {
		e.pools[pool] = kept
	}
	e.mu.Unlock()

	e.report(placements)
}

// tryMatch attempts to join the ticket to the first eligible game in
// ascending id order. The registry scan never holds a game lock beyond
// the joinability check and the join attempt itself.
func (e *Engine) tryMatch(t *Ticket) (*game.Game, int, bool) {
	var (
		matched *game.Game
		slot    int
	)
	e.registry.ForEach(func(g *game.Game) bool {
		if g.Joinable(t.Filter) != game.Joinable {
			return true
		}
		idx, err := g.Join(game.Member{
			Player:  t.Player,
			Session: t.Session,
			Name:    t.Name,
			Attrs:   t.SlotAttrs,
		})
		if err != nil {
			// Lost the race for the last slot, or a migration or
			// removal began between the check and the join. Keep
			// scanning.
			return true
		}
		matched = g
		slot = idx
		return false
	})
	if matched == nil {
		return nil, 0, false
	}
	return matched, slot, true
}

func (e *Engine) report(placements []placed) {
	for _, p := range placements {
		slog.Info("matchmaking ticket matched",
			"ticket", p.ticket.ID, "player", p.ticket.Player, "game", p.game.ID(), "slot", p.slot,
			"waited", e.now().Sub(p.ticket.CreatedAt))
		if e.placement != nil {
			e.placement.OnMatched(p.ticket, p.game, p.slot)
		}
	}
}

// Tick applies the wait-threshold policy: any ticket older than the
// configured threshold gets a freshly created game with the ticket
// holder as host. Runs from the tick driver; a no-op when the policy is
// disabled.
func (e *Engine) Tick(ctx context.Context) error {
	if e.createAfter <= 0 {
		return nil
	}

	cutoff := e.now().Add(-e.createAfter)
	var placements []placed

	e.mu.Lock()
	for name, queue := range e.pools {
		kept := queue[:0]
		for _, t := range queue {
			if t.CreatedAt.After(cutoff) {
				kept = append(kept, t)
				continue
			}
			g, err := e.registry.Create(e.createCapacity, t.Filter.Clone(), 0, game.Member{
				Player:  t.Player,
				Session: t.Session,
				Name:    t.Name,
				Attrs:   t.SlotAttrs,
			})
			if err != nil {
				slog.ErrorContext(ctx, "creating game for starved ticket",
					"ticket", t.ID, "error", err)
				kept = append(kept, t)
				continue
			}
			placements = append(placements, placed{ticket: *t, game: g, slot: 0})
		}
		if len(kept) == 0 {
			delete(e.pools, name)
		} else {
			e.pools[name] = kept
		}
	}
	e.mu.Unlock()

	e.report(placements)
	// The freshly created games are open; queued tickets that could not
	// match before may fit them now.
	if len(placements) > 0 {
		e.runAll()
	}
	return nil
}
