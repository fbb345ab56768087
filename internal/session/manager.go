package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixil98/go-lobby/internal/account"
	"github.com/pixil98/go-lobby/internal/game"
	"github.com/pixil98/go-lobby/internal/matchmaking"
	"github.com/pixil98/go-lobby/internal/protocol"
)

// Messaging is the slice of the messaging layer sessions need: a
// per-session subscription for fanout deliveries.
type Messaging interface {
	Subscribe(sessionID string, handler func(data []byte)) (func(), error)
}

// Engine is the slice of the matchmaking engine sessions drive.
type Engine interface {
	Enqueue(t matchmaking.Ticket) string
	Cancel(sessionID string)
	GameChanged(id game.ID)
}

// Manager owns every live session. It implements
// matchmaking.Placement, and its delivery-failure handler is hooked
// into the fanout so a dead subject tears down its session.
type Manager struct {
	store     account.Store
	directory *Directory
	registry  *game.Registry
	messaging Messaging
	engine    Engine

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires a session manager. The matchmaking engine is
// attached afterwards with SetEngine because the engine needs the
// manager as its placement target.
func NewManager(store account.Store, directory *Directory, registry *game.Registry, messaging Messaging) *Manager {
	return &Manager{
		store:     store,
		directory: directory,
		registry:  registry,
		messaging: messaging,
		sessions:  make(map[string]*Session),
	}
}

// SetEngine attaches the matchmaking engine. Must be called before the
// first connection is accepted.
func (m *Manager) SetEngine(engine Engine) {
	m.engine = engine
}

// Directory exposes the player directory for reporting surfaces.
func (m *Manager) Directory() *Directory {
	return m.directory
}

// RunSession owns one connection from accept to teardown. It returns
// once the connection is closed and all cleanup has run.
func (m *Manager) RunSession(ctx context.Context, conn io.ReadWriteCloser) error {
	s := &Session{
		id:          uuid.NewString(),
		ch:          protocol.NewChannel(conn),
		mgr:         m,
		state:       StateConnecting,
		connectedAt: time.Now(),
		done:        make(chan struct{}),
		ended:       make(chan struct{}),
		quit:        make(chan struct{}),
		msgs:        make(chan []byte, 64),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()
	}()

	slog.InfoContext(ctx, "session connected", "session", s.id)

	err := s.run(ctx)
	s.disconnect(ctx)

	if err != nil && !errors.Is(err, errSessionEnded) && !errors.Is(err, context.Canceled) &&
		!errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Start implements service.Worker: it blocks until shutdown, then
// closes every remaining session.
func (m *Manager) Start(ctx context.Context) error {
	<-ctx.Done()

	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.disconnect(context.Background())
	}
	return nil
}

func (m *Manager) lookup(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// OnMatched implements matchmaking.Placement. If the winning session
// vanished between the join and this callback, the join is undone so
// the slot does not leak.
func (m *Manager) OnMatched(t matchmaking.Ticket, g *game.Game, slot int) {
	s, ok := m.lookup(t.Session)
	if ok && s.enterGame(g, slot) {
		return
	}

	slog.Warn("matched session is gone, undoing join", "session", t.Session, "game", g.ID())
	if err := m.registry.Leave(g.ID(), t.Player, game.RemoveDisconnected); err != nil &&
		!errors.Is(err, game.ErrGameNotFound) && !errors.Is(err, game.ErrPlayerNotInGame) {
		slog.Error("undoing stale match", "game", g.ID(), "player", t.Player, "error", err)
	}
	m.engine.GameChanged(g.ID())
}

// OnDeliveryFailure is the fanout's dead-session callback: a failed
// send means the recipient is gone, so run its disconnect cleanup.
func (m *Manager) OnDeliveryFailure(sessionID string) {
	if s, ok := m.lookup(sessionID); ok {
		s.disconnect(context.Background())
	}
}

// playerRemoved flips the removed player's session back to Idle after
// a removal they did not initiate.
func (m *Manager) playerRemoved(player game.PlayerID) {
	sessionID, ok := m.directory.Lookup(player)
	if !ok {
		return
	}
	if s, ok := m.lookup(sessionID); ok {
		s.leftGame()
	}
}

// errorCode maps domain errors to wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, account.ErrAlreadyOnline):
		return "already_online"
	case errors.Is(err, account.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, game.ErrGameNotFound):
		return "game_not_found"
	case errors.Is(err, game.ErrGameFull):
		return "game_full"
	case errors.Is(err, game.ErrGameMigrating):
		return "game_migrating"
	case errors.Is(err, game.ErrPlayerNotInGame):
		return "player_not_in_game"
	case errors.Is(err, game.ErrNotHost):
		return "not_host"
	case errors.Is(err, game.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, errNotAuthed):
		return "not_authenticated"
	case errors.Is(err, errInGame), errors.Is(err, errNotInGame), errors.Is(err, errBadRequest):
		return "bad_state"
	default:
		return "internal"
	}
}
