package game

// ID is a process-unique game identifier. IDs are allocated
// monotonically by the registry and never reused.
type ID uint64

// PlayerID identifies an authenticated player in the account store.
type PlayerID uint64

// EventKind discriminates game mutation events.
type EventKind string

const (
	EventPlayerJoined   EventKind = "player_joined"
	EventPlayerLeft     EventKind = "player_left"
	EventHostMigrated   EventKind = "host_migrated"
	EventAttrsChanged   EventKind = "attributes_changed"
	EventSettingChanged EventKind = "setting_changed"
	EventGameClosed     EventKind = "game_closed"
)

// RemoveReason explains why a player left a game.
type RemoveReason string

const (
	RemoveLeft         RemoveReason = "left"
	RemoveDisconnected RemoveReason = "disconnected"
	RemoveKicked       RemoveReason = "kicked"
)

// Event is one game mutation, sequenced per game. Seq is assigned under
// the game's lock, so for a single game event order equals sequence
// order.
type Event struct {
	Seq     uint64
	Game    ID
	Kind    EventKind
	Player  PlayerID
	Name    string
	Slot    int
	Reason  RemoveReason
	Attrs   Attrs
	Setting uint16
}

// Recipient is one occupied slot's session at the time an event was
// produced. Recipients are listed in slot-index order.
type Recipient struct {
	Session string
	Slot    int
}

// EventSink receives game events together with the recipients they
// should be delivered to. Enqueue is called while the producing game's
// lock is held, so implementations must not block or perform I/O.
type EventSink interface {
	Enqueue(ev Event, recipients []Recipient)
}

// NopSink discards events. Used by tests that only exercise slot logic.
type NopSink struct{}

func (NopSink) Enqueue(Event, []Recipient) {}
