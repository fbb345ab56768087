package game

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultMaxCapacity bounds game capacity when the registry is built
// without an explicit limit.
const DefaultMaxCapacity = 32

// Registry is the concurrent catalog of all live games. It has the
// exclusive right to allocate game ids and to add or remove entries.
// The registry's own lock is independent of any single game's lock, so
// a slow game operation never blocks unrelated lookups.
type Registry struct {
	mu     sync.RWMutex
	games  map[ID]*Game
	nextID atomic.Uint64

	maxCapacity int
	sink        EventSink
}

// NewRegistry creates an empty registry. Games created through it emit
// their events to sink. A maxCapacity of zero applies
// DefaultMaxCapacity.
func NewRegistry(maxCapacity int, sink EventSink) *Registry {
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Registry{
		games:       make(map[ID]*Game),
		maxCapacity: maxCapacity,
		sink:        sink,
	}
}

// Create allocates the next game id and registers a new game hosted by
// host in slot 0. Capacity must be between 1 and the configured
// maximum.
func (r *Registry) Create(capacity int, attrs Attrs, setting uint16, host Member) (*Game, error) {
	if capacity < 1 || capacity > r.maxCapacity {
		return nil, ErrCapacityExceeded
	}

	id := ID(r.nextID.Add(1))
	g := newGame(id, capacity, attrs, setting, host, r.sink)

	r.mu.Lock()
	r.games[id] = g
	r.mu.Unlock()

	slog.Info("game created", "game", id, "host", host.Player, "capacity", capacity)
	return g, nil
}

// Lookup returns the game with the given id, or ErrGameNotFound. A
// removed id is never resurrected.
func (r *Registry) Lookup(id ID) (*Game, error) {
	r.mu.RLock()
	g, ok := r.games[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Join adds a member to the identified game.
func (r *Registry) Join(id ID, m Member) (int, error) {
	g, err := r.Lookup(id)
	if err != nil {
		return 0, err
	}
	return g.Join(m)
}

// Leave removes the player from the identified game, removing the game
// itself once its last slot empties.
func (r *Registry) Leave(id ID, player PlayerID, reason RemoveReason) error {
	g, err := r.Lookup(id)
	if err != nil {
		return err
	}

	empty, err := g.Leave(player, reason)
	if err != nil {
		return err
	}
	if empty {
		r.remove(id)
	}
	return nil
}

// Kick removes target from the identified game on behalf of host.
func (r *Registry) Kick(id ID, host, target PlayerID) error {
	g, err := r.Lookup(id)
	if err != nil {
		return err
	}

	empty, err := g.Kick(host, target)
	if err != nil {
		return err
	}
	if empty {
		r.remove(id)
	}
	return nil
}

func (r *Registry) remove(id ID) {
	r.mu.Lock()
	delete(r.games, id)
	r.mu.Unlock()
	slog.Info("game removed", "game", id)
}

// ForEach calls fn for every live game in ascending id order until fn
// returns false. The registry lock is not held during fn, so fn may
// take individual game locks.
func (r *Registry) ForEach(fn func(*Game) bool) {
	r.mu.RLock()
	ordered := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		ordered = append(ordered, g)
	}
	r.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })
	for _, g := range ordered {
		if !fn(g) {
			return
		}
	}
}

// Count returns the number of live games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// Snapshot returns up to count game snapshots in ascending id order,
// skipping offset games, plus whether more games follow. Read-only:
// used by reporting surfaces which must never mutate core state.
func (r *Registry) Snapshot(offset, count int) ([]Snapshot, bool) {
	// Paging arguments come off the wire; negative values read as the
	// start of the listing and an empty page.
	if offset < 0 {
		offset = 0
	}
	if count < 0 {
		count = 0
	}

	r.mu.RLock()
	ordered := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		ordered = append(ordered, g)
	}
	r.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	if offset >= len(ordered) {
		return nil, false
	}
	more := len(ordered) > offset+count
	end := offset + count
	if end > len(ordered) {
		end = len(ordered)
	}

	snaps := make([]Snapshot, 0, end-offset)
	for _, g := range ordered[offset:end] {
		snaps = append(snaps, g.Snapshot())
	}
	return snaps, more
}
