// Package fanout delivers game mutation events to every member
// session's message subject. Producers enqueue while holding their
// game's lock; a single dispatcher performs all publishing, so events
// for one game always go out in the order they were produced, and a
// slow or dead recipient never blocks the producer.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pixil98/go-lobby/internal/game"
	"github.com/pixil98/go-lobby/internal/protocol"
)

// Publisher sends an encoded payload to one session's subject.
type Publisher interface {
	Publish(sessionID string, data []byte) error
}

type delivery struct {
	ev         game.Event
	recipients []game.Recipient
}

// Fanout implements game.EventSink. Enqueue never blocks and performs
// no I/O; Start drains the queues.
type Fanout struct {
	pub Publisher

	mu     sync.Mutex
	queues map[game.ID][]delivery
	order  []game.ID
	wake   chan struct{}
	onDead func(sessionID string)
}

// New creates a fanout publishing through pub.
func New(pub Publisher) *Fanout {
	return &Fanout{
		pub:    pub,
		queues: make(map[game.ID][]delivery),
		wake:   make(chan struct{}, 1),
	}
}

// SetDeadSessionHandler registers the callback invoked when delivery to
// a session fails. The handler must tolerate being called for sessions
// that are already gone.
func (f *Fanout) SetDeadSessionHandler(fn func(sessionID string)) {
	f.mu.Lock()
	f.onDead = fn
	f.mu.Unlock()
}

// Enqueue implements game.EventSink. Called under the producing game's
// lock, so it only appends to the in-memory queue.
func (f *Fanout) Enqueue(ev game.Event, recipients []game.Recipient) {
	f.mu.Lock()
	if _, ok := f.queues[ev.Game]; !ok {
		f.order = append(f.order, ev.Game)
	}
	f.queues[ev.Game] = append(f.queues[ev.Game], delivery{ev: ev, recipients: recipients})
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatcher until ctx is canceled.
func (f *Fanout) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.wake:
			f.drain(ctx)
		}
	}
}

// drain delivers every pending batch. Batches for one game are taken
// whole, so later events for that game enqueued mid-delivery form the
// next batch and keep their relative order.
func (f *Fanout) drain(ctx context.Context) {
	for {
		f.mu.Lock()
		if len(f.order) == 0 {
			f.mu.Unlock()
			return
		}
		id := f.order[0]
		f.order = f.order[1:]
		batch := f.queues[id]
		delete(f.queues, id)
		onDead := f.onDead
		f.mu.Unlock()

		for _, d := range batch {
			f.deliver(ctx, d, onDead)
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, d delivery, onDead func(string)) {
	msg := toMessage(d.ev)
	if msg == nil {
		return
	}
	data, err := protocol.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "encoding game event", "game", d.ev.Game, "kind", d.ev.Kind, "error", err)
		return
	}

	// Best-effort per recipient, in slot-index order. A failed send
	// means the session's subject is gone: treat it as an implicit
	// disconnect, never as a broadcast failure.
	for _, r := range d.recipients {
		if err := f.pub.Publish(r.Session, data); err != nil {
			slog.WarnContext(ctx, "dropping dead session from delivery",
				"session", r.Session, "game", d.ev.Game, "error", err)
			if onDead != nil {
				onDead(r.Session)
			}
		}
	}
}

// toMessage converts a game event to its wire notification.
func toMessage(ev game.Event) protocol.Message {
	switch ev.Kind {
	case game.EventPlayerJoined:
		return protocol.PlayerJoined{
			Game:   ev.Game,
			Player: ev.Player,
			Name:   ev.Name,
			Slot:   ev.Slot,
			Attrs:  ev.Attrs,
		}
	case game.EventPlayerLeft:
		return protocol.PlayerLeft{
			Game:   ev.Game,
			Player: ev.Player,
			Slot:   ev.Slot,
			Reason: ev.Reason,
		}
	case game.EventHostMigrated:
		return protocol.HostMigrated{
			Game: ev.Game,
			Host: ev.Player,
			Slot: ev.Slot,
		}
	case game.EventAttrsChanged:
		return protocol.AttrsChanged{
			Game:  ev.Game,
			Attrs: ev.Attrs,
		}
	case game.EventSettingChanged:
		return protocol.SettingChanged{
			Game:    ev.Game,
			Setting: ev.Setting,
		}
	case game.EventGameClosed:
		return protocol.GameClosed{Game: ev.Game}
	default:
		return nil
	}
}
