package session

import (
	"log/slog"
	"sync"

	"github.com/pixil98/go-lobby/internal/account"
	"github.com/pixil98/go-lobby/internal/game"
)

type directoryEntry struct {
	sessionID string
	evict     func()
}

// Directory is the single source of truth for who is online. A player
// id has at most one live session at any instant: by default a second
// login evicts the first, with the eviction completed before the new
// registration returns.
type Directory struct {
	mu     sync.Mutex
	online map[game.PlayerID]directoryEntry

	allowEviction bool
}

// NewDirectory creates an empty directory. When allowEviction is false
// a second login for an online player fails with ErrAlreadyOnline
// instead of taking over.
func NewDirectory(allowEviction bool) *Directory {
	return &Directory{
		online:        make(map[game.PlayerID]directoryEntry),
		allowEviction: allowEviction,
	}
}

// Register binds the player to a session. evict is invoked to
// terminate this session if the same player logs in again later; it
// must not return until the session's teardown has completed, so a
// successful Register means no prior session for the player is still
// live.
func (d *Directory) Register(id game.PlayerID, sessionID string, evict func()) error {
	d.mu.Lock()
	prior, online := d.online[id]
	if online && !d.allowEviction {
		d.mu.Unlock()
		return account.ErrAlreadyOnline
	}
	d.online[id] = directoryEntry{sessionID: sessionID, evict: evict}
	d.mu.Unlock()

	if online {
		slog.Info("evicting prior session for player", "player", id, "session", prior.sessionID)
		prior.evict()
	}
	return nil
}

// Deregister removes the binding, but only if it still points at
// sessionID: an evicted session must not tear down its successor's
// registration.
func (d *Directory) Deregister(id game.PlayerID, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.online[id]; ok && entry.sessionID == sessionID {
		delete(d.online, id)
	}
}

// Lookup returns the session id currently bound to the player.
func (d *Directory) Lookup(id game.PlayerID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.online[id]
	return entry.sessionID, ok
}

// OnlineCount returns the number of players currently online.
// Read-only; used by reporting surfaces.
func (d *Directory) OnlineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.online)
}
