package game

import (
	"errors"
	"sync"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrGameFull         = errors.New("game is full")
	ErrGameMigrating    = errors.New("game is migrating hosts")
	ErrPlayerNotInGame  = errors.New("player is not in the game")
	ErrNotHost          = errors.New("player is not the game host")
	ErrCapacityExceeded = errors.New("game capacity exceeds the configured maximum")
)

// State describes a game's lifecycle. Open and Full are derived from
// slot occupancy. Migrating is set only for the duration of a host
// handover; no joins are accepted while it is set. Closed is terminal:
// a closed game has been removed from the registry and can never be
// joined again.
type State string

const (
	StateOpen      State = "open"
	StateFull      State = "full"
	StateMigrating State = "migrating"
	StateClosed    State = "closed"
)

// Member is one occupied slot.
type Member struct {
	Player  PlayerID
	Session string
	Name    string
	Attrs   Attrs
}

type slot struct {
	occupied bool
	member   Member
}

// Game is one hosted match: a fixed-capacity slot table, host identity,
// and host-mutable attributes. All mutation happens under a single
// per-game mutex; events are sequenced under that mutex and handed to
// the sink before it is released, so per-game event order is exact.
type Game struct {
	id ID

	mu      sync.Mutex
	slots   []slot
	attrs   Attrs
	setting uint16
	host    PlayerID
	state   State
	seq     uint64

	sink EventSink
}

func newGame(id ID, capacity int, attrs Attrs, setting uint16, host Member, sink EventSink) *Game {
	g := &Game{
		id:      id,
		slots:   make([]slot, capacity),
		attrs:   attrs.Clone(),
		setting: setting,
		host:    host.Player,
		sink:    sink,
	}
	g.slots[0] = slot{occupied: true, member: host}
	g.state = g.occupancyState()
	return g
}

// ID returns the game's process-unique identifier.
func (g *Game) ID() ID { return g.id }

// State returns the game's current lifecycle state.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Host returns the current host player.
func (g *Game) Host() PlayerID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.host
}

// occupancyState derives Open/Full from the slot table. Callers must
// hold g.mu.
func (g *Game) occupancyState() State {
	for _, s := range g.slots {
		if !s.occupied {
			return StateOpen
		}
	}
	return StateFull
}

// recipients lists every occupied slot's session in slot-index order.
// Callers must hold g.mu.
func (g *Game) recipients() []Recipient {
	out := make([]Recipient, 0, len(g.slots))
	for i, s := range g.slots {
		if s.occupied {
			out = append(out, Recipient{Session: s.member.Session, Slot: i})
		}
	}
	return out
}

// emit hands an event to the sink with a fresh sequence number. Callers
// must hold g.mu; the sink must not block.
func (g *Game) emit(ev Event, recipients []Recipient) {
	g.seq++
	ev.Seq = g.seq
	ev.Game = g.id
	g.sink.Enqueue(ev, recipients)
}

// Join places the member in the first empty slot in ascending index
// order. It fails with ErrGameMigrating during a host handover (the
// caller may retry), ErrGameFull when no slot is empty, and
// ErrGameNotFound once the game has closed.
func (g *Game) Join(m Member) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateClosed:
		return 0, ErrGameNotFound
	case StateMigrating:
		return 0, ErrGameMigrating
	}

	idx := -1
	for i, s := range g.slots {
		if !s.occupied {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrGameFull
	}

	g.slots[idx] = slot{occupied: true, member: m}
	g.state = g.occupancyState()
	g.emit(Event{
		Kind:   EventPlayerJoined,
		Player: m.Player,
		Name:   m.Name,
		Slot:   idx,
		Attrs:  m.Attrs.Clone(),
	}, g.recipients())
	return idx, nil
}

// Leave empties the slot occupied by player. Departure of the host
// triggers migration to the lowest occupied slot, or closes the game if
// no slot remains occupied. The returned bool reports whether the game
// is now empty and must be removed from the registry.
func (g *Game) Leave(player PlayerID, reason RemoveReason) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(player, reason)
}

// Kick removes target from the game. Only the current host may kick.
func (g *Game) Kick(host, target PlayerID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.host != host {
		return false, ErrNotHost
	}
	if target == host {
		return false, ErrPlayerNotInGame
	}
	return g.removeLocked(target, RemoveKicked)
}

func (g *Game) removeLocked(player PlayerID, reason RemoveReason) (bool, error) {
	if g.state == StateClosed {
		return false, ErrGameNotFound
	}

	idx := -1
	for i, s := range g.slots {
		if s.occupied && s.member.Player == player {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, ErrPlayerNotInGame
	}

	// Notify everyone who was present, including the departing player.
	before := g.recipients()
	g.slots[idx] = slot{}
	g.emit(Event{
		Kind:   EventPlayerLeft,
		Player: player,
		Slot:   idx,
		Reason: reason,
	}, before)

	if g.host == player {
		g.migrateLocked()
	} else {
		g.state = g.occupancyState()
	}

	if g.state == StateClosed {
		return true, nil
	}
	return false, nil
}

// migrateLocked hands the host role to the lowest occupied slot, or
// closes the game when none remains. The Migrating state never
// outlives this call; it exists so concurrent joins observed between
// the event emissions are refused rather than landed mid-handover.
func (g *Game) migrateLocked() {
	g.state = StateMigrating

	for i, s := range g.slots {
		if s.occupied {
			g.host = s.member.Player
			g.emit(Event{
				Kind:   EventHostMigrated,
				Player: g.host,
				Slot:   i,
			}, g.recipients())
			g.state = g.occupancyState()
			return
		}
	}

	g.state = StateClosed
	g.emit(Event{Kind: EventGameClosed}, nil)
}

// SetAttributes merges attrs into the game's attribute set. Only the
// current host may change attributes.
func (g *Game) SetAttributes(player PlayerID, attrs Attrs) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateClosed {
		return ErrGameNotFound
	}
	if g.host != player {
		return ErrNotHost
	}

	g.attrs = g.attrs.Merge(attrs)
	g.emit(Event{
		Kind:  EventAttrsChanged,
		Attrs: g.attrs.Clone(),
	}, g.recipients())
	return nil
}

// SetSetting replaces the game's settings word. Host only.
func (g *Game) SetSetting(player PlayerID, setting uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateClosed {
		return ErrGameNotFound
	}
	if g.host != player {
		return ErrNotHost
	}

	g.setting = setting
	g.emit(Event{
		Kind:    EventSettingChanged,
		Setting: setting,
	}, g.recipients())
	return nil
}

// JoinableState is the matchmaker's view of a game.
type JoinableState int

const (
	// Joinable means the game is open, has an empty slot, and its
	// attributes satisfy the filter.
	Joinable JoinableState = iota
	// Full means the game has no empty slot or is mid-migration.
	Full
	// NoMatch means the game's attributes do not satisfy the filter.
	NoMatch
)

// Joinable reports whether a ticket with the given filter could join
// right now. The verdict is advisory: the join itself may still fail
// and must be retried against the returned error.
func (g *Game) Joinable(filter Attrs) JoinableState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.attrs.Matches(filter) {
		return NoMatch
	}
	if g.state != StateOpen {
		return Full
	}
	return Joinable
}

// MemberSnapshot is one occupied slot in a snapshot.
type MemberSnapshot struct {
	Player PlayerID `json:"player"`
	Name   string   `json:"name"`
	Slot   int      `json:"slot"`
	Attrs  Attrs    `json:"attrs,omitempty"`
}

// Snapshot is a point-in-time read-only copy of a game, used for the
// joiner's setup notification and for admin reporting.
type Snapshot struct {
	ID       ID               `json:"id"`
	State    State            `json:"state"`
	Capacity int              `json:"capacity"`
	Host     PlayerID         `json:"host"`
	Setting  uint16           `json:"setting"`
	Attrs    Attrs            `json:"attrs,omitempty"`
	Members  []MemberSnapshot `json:"members"`
}

// Snapshot captures the game's current state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		ID:       g.id,
		State:    g.state,
		Capacity: len(g.slots),
		Host:     g.host,
		Setting:  g.setting,
		Attrs:    g.attrs.Clone(),
	}
	for i, s := range g.slots {
		if s.occupied {
			snap.Members = append(snap.Members, MemberSnapshot{
				Player: s.member.Player,
				Name:   s.member.Name,
				Slot:   i,
				Attrs:  s.member.Attrs.Clone(),
			})
		}
	}
	return snap
}
