package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixil98/go-lobby/internal/account"
	"github.com/pixil98/go-lobby/internal/game"
	"github.com/pixil98/go-lobby/internal/matchmaking"
	"github.com/pixil98/go-lobby/internal/protocol"
)

// State is a session's position in its lifecycle. Closed is terminal
// and reachable from every other state.
type State string

const (
	StateConnecting State = "connecting"
	StateIdle       State = "idle"
	StateInGame     State = "in_game"
	StateClosed     State = "closed"
)

var errSessionEnded = errors.New("session ended")

// Session is the server-side state for one live client connection. The
// dispatch loop is the only goroutine reading the channel; matchmaking
// placement and delivery-failure teardown arrive from other goroutines,
// so mutable state sits behind mu.
type Session struct {
	id  string
	ch  protocol.Channel
	mgr *Manager

	mu     sync.Mutex
	state  State
	player account.Player
	gameID game.ID

	connectedAt time.Time
	gamesHosted int
	gamesJoined int

	// done is closed when another login takes over this player id.
	done chan struct{}
	// ended is closed once disconnect has finished all cleanup.
	ended chan struct{}
	// quit is closed once teardown starts, releasing any blocked
	// notification forwarders.
	quit     chan struct{}
	quitOnce sync.Once

	msgs  chan []byte
	unsub func()
}

// ID returns the opaque, process-unique connection id.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Player returns the authenticated player, valid once state is Idle or
// InGame.
func (s *Session) Player() account.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Game returns the current game id and whether the session is in one.
func (s *Session) Game() (game.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID, s.state == StateInGame
}

// run processes inbound messages until the connection drops, the
// client logs out, or the session is evicted.
func (s *Session) run(ctx context.Context) error {
	inbound := make(chan protocol.Message)
	readErr := make(chan error, 1)
	go func() {
		defer close(inbound)
		for {
			msg, err := s.ch.Receive()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-s.quit:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			// Another connection authenticated as this player.
			if err := s.ch.Send(protocol.Evicted{Reason: "another connection has taken over this account"}); err != nil {
				slog.Warn("writing eviction notice", "session", s.id, "error", err)
			}
			return errSessionEnded

		case data := <-s.msgs:
			if err := s.ch.SendEncoded(data); err != nil {
				return fmt.Errorf("writing notification: %w", err)
			}

		case msg, ok := <-inbound:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if err := s.dispatch(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// dispatch routes one decoded message. Recoverable failures become
// protocol Error responses and never terminate the connection.
func (s *Session) dispatch(ctx context.Context, msg protocol.Message) error {
	var err error
	switch m := msg.(type) {
	case *protocol.Login:
		err = s.handleLogin(ctx, func(ctx context.Context) (account.Player, error) {
			return s.mgr.store.VerifyPassword(ctx, m.Email, m.Password)
		})
	case *protocol.TokenLogin:
		err = s.handleLogin(ctx, func(ctx context.Context) (account.Player, error) {
			return s.mgr.store.VerifyToken(ctx, m.Player, m.Token)
		})
	case *protocol.Logout:
		if sendErr := s.ch.Send(protocol.Ack{Of: protocol.TypeLogout}); sendErr != nil {
			return sendErr
		}
		return errSessionEnded
	case *protocol.Ping:
		return s.ch.Send(protocol.Pong{})
	case *protocol.HostGame:
		err = s.handleHostGame(m)
	case *protocol.Search:
		err = s.handleSearch(m)
	case *protocol.CancelSearch:
		s.mgr.engine.Cancel(s.id)
		return s.ch.Send(protocol.Ack{Of: protocol.TypeCancelSearch})
	case *protocol.LeaveGame:
		err = s.handleLeaveGame()
	case *protocol.SetAttributes:
		err = s.handleGameEdit(protocol.TypeSetAttributes, func(g *game.Game, p game.PlayerID) error {
			return g.SetAttributes(p, m.Attrs)
		})
	case *protocol.SetSetting:
		err = s.handleGameEdit(protocol.TypeSetSetting, func(g *game.Game, p game.PlayerID) error {
			return g.SetSetting(p, m.Setting)
		})
	case *protocol.KickPlayer:
		err = s.handleKick(m.Player)
	default:
		err = errBadRequest
	}

	if err != nil {
		return s.sendError(err)
	}
	return nil
}

var (
	errBadRequest = errors.New("unexpected message for the current session state")
	errNotAuthed  = errors.New("not authenticated")
	errInGame     = errors.New("already in a game")
	errNotInGame  = errors.New("not in a game")
)

// handleLogin runs a credential check and, on success, takes the
// player online: prior sessions for the id are evicted before the
// directory registration returns.
func (s *Session) handleLogin(ctx context.Context, verify func(context.Context) (account.Player, error)) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return errBadRequest
	}
	s.mu.Unlock()

	player, err := verify(ctx)
	if err != nil {
		return err
	}

	if err := s.mgr.directory.Register(player.ID, s.id, s.evict); err != nil {
		return err
	}

	unsub, err := s.mgr.messaging.Subscribe(s.id, s.forwardNotification)
	if err != nil {
		s.mgr.directory.Deregister(player.ID, s.id)
		return fmt.Errorf("%w: %w", account.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.player = player
	s.state = StateIdle
	s.unsub = unsub
	s.mu.Unlock()

	slog.InfoContext(ctx, "session authenticated", "session", s.id, "player", player.ID, "name", player.Name)
	return s.ch.Send(protocol.Welcome{Player: player.ID, Name: player.Name, Token: player.Token})
}

// forwardNotification moves a fanout payload onto the session loop.
// Blocks only against this session's own queue; teardown releases it.
func (s *Session) forwardNotification(data []byte) {
	select {
	case s.msgs <- data:
	case <-s.quit:
	}
}

func (s *Session) handleHostGame(m *protocol.HostGame) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state == StateInGame {
			return errInGame
		}
		return errNotAuthed
	}
	player := s.player
	s.mu.Unlock()

	// Hosting supersedes any outstanding search.
	s.mgr.engine.Cancel(s.id)

	g, err := s.mgr.registry.Create(m.Capacity, m.Attrs, m.Setting, game.Member{
		Player:  player.ID,
		Session: s.id,
		Name:    player.Name,
		Attrs:   m.SlotAttrs,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateInGame
	s.gameID = g.ID()
	s.gamesHosted++
	s.mu.Unlock()

	// A fresh open game may satisfy queued tickets. Run matching
	// before replying so the host's view is settled once the reply
	// lands.
	s.mgr.engine.GameChanged(g.ID())
	return s.ch.Send(protocol.GameInfo{Game: g.Snapshot(), Slot: 0})
}

func (s *Session) handleSearch(m *protocol.Search) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state == StateInGame {
			return errInGame
		}
		return errNotAuthed
	}
	player := s.player
	s.mu.Unlock()

	// A new search replaces the previous ticket.
	s.mgr.engine.Cancel(s.id)
	ticket := s.mgr.engine.Enqueue(matchTicket(player, s.id, m))
	return s.ch.Send(protocol.Searching{Ticket: ticket})
}

func (s *Session) handleLeaveGame() error {
	s.mu.Lock()
	if s.state != StateInGame {
		s.mu.Unlock()
		return errNotInGame
	}
	id := s.gameID
	player := s.player.ID
	s.mu.Unlock()

	if err := s.mgr.registry.Leave(id, player, game.RemoveLeft); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateIdle
	s.gameID = 0
	s.mu.Unlock()

	// Leaving opened a slot.
	s.mgr.engine.GameChanged(id)
	return s.ch.Send(protocol.Ack{Of: protocol.TypeLeaveGame})
}

func (s *Session) handleGameEdit(of protocol.Type, edit func(*game.Game, game.PlayerID) error) error {
	s.mu.Lock()
	if s.state != StateInGame {
		s.mu.Unlock()
		return errNotInGame
	}
	id := s.gameID
	player := s.player.ID
	s.mu.Unlock()

	g, err := s.mgr.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := edit(g, player); err != nil {
		return err
	}

	// Attribute edits change matchmaking eligibility. Re-run matching
	// before the ack so an acked edit has already taken effect.
	s.mgr.engine.GameChanged(id)
	return s.ch.Send(protocol.Ack{Of: of})
}

func (s *Session) handleKick(target game.PlayerID) error {
	s.mu.Lock()
	if s.state != StateInGame {
		s.mu.Unlock()
		return errNotInGame
	}
	id := s.gameID
	player := s.player.ID
	s.mu.Unlock()

	if err := s.mgr.registry.Kick(id, player, target); err != nil {
		return err
	}

	s.mgr.playerRemoved(target)
	s.mgr.engine.GameChanged(id)
	return s.ch.Send(protocol.Ack{Of: protocol.TypeKickPlayer})
}

// enterGame is called by matchmaking placement from outside the
// session loop. Returns false if the session is already closed, in
// which case the caller must undo the join.
func (s *Session) enterGame(g *game.Game, slot int) bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return false
	}
	s.state = StateInGame
	s.gameID = g.ID()
	s.gamesJoined++
	s.mu.Unlock()

	if err := s.ch.Send(protocol.GameInfo{Game: g.Snapshot(), Slot: slot}); err != nil {
		slog.Warn("writing match notification", "session", s.id, "error", err)
	}
	return true
}

// evictionGrace bounds how long a takeover waits for the evicted
// session's loop to notice the done signal and deliver the eviction
// notice before the connection is forced closed.
const evictionGrace = time.Second

// evict terminates the session on behalf of a newer login for the same
// player. It returns only once teardown has finished, so the player
// never has two live sessions at the same instant. A loop wedged on a
// dead client's write cannot see the done signal; closing the channel
// through disconnect unblocks it.
func (s *Session) evict() {
	close(s.done)

	select {
	case <-s.ended:
		return
	case <-time.After(evictionGrace):
	}

	s.disconnect(context.Background())
	<-s.ended
}

// leftGame flips the session back to Idle after a removal it did not
// request itself (kick, game teardown).
func (s *Session) leftGame() {
	s.mu.Lock()
	if s.state == StateInGame {
		s.state = StateIdle
		s.gameID = 0
	}
	s.mu.Unlock()
}

// sendError surfaces a recoverable failure as a protocol response.
func (s *Session) sendError(err error) error {
	slog.Debug("request failed", "session", s.id, "error", err)
	return s.ch.Send(protocol.Error{Code: errorCode(err), Message: err.Error()})
}

// disconnect tears the session down. Idempotent and always safe to
// call: it cancels outstanding tickets, performs game-leave cleanup,
// deregisters from the directory, and records session stats.
func (s *Session) disconnect(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	prior := s.state
	player := s.player
	gameID := s.gameID
	inGame := prior == StateInGame
	unsub := s.unsub
	stats := account.SessionStats{
		ConnectedAt: s.connectedAt,
		Duration:    time.Since(s.connectedAt),
		GamesHosted: s.gamesHosted,
		GamesJoined: s.gamesJoined,
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.quitOnce.Do(func() { close(s.quit) })

	s.mgr.engine.Cancel(s.id)

	if inGame {
		if err := s.mgr.registry.Leave(gameID, player.ID, game.RemoveDisconnected); err != nil &&
			!errors.Is(err, game.ErrGameNotFound) && !errors.Is(err, game.ErrPlayerNotInGame) {
			slog.WarnContext(ctx, "game cleanup on disconnect", "session", s.id, "game", gameID, "error", err)
		}
		s.mgr.engine.GameChanged(gameID)
	}

	if prior != StateConnecting {
		s.mgr.directory.Deregister(player.ID, s.id)
		if unsub != nil {
			unsub()
		}
		// Fire-and-forget: nothing in teardown depends on the write.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.mgr.store.RecordSessionStats(ctx, player.ID, stats); err != nil {
				slog.Warn("recording session stats", "player", player.ID, "error", err)
			}
		}()
	}

	if err := s.ch.Close(); err != nil {
		slog.DebugContext(ctx, "closing session channel", "session", s.id, "error", err)
	}
	slog.InfoContext(ctx, "session closed", "session", s.id, "player", player.ID)
	close(s.ended)
}

func matchTicket(player account.Player, sessionID string, m *protocol.Search) matchmaking.Ticket {
	return matchmaking.Ticket{
		Player:    player.ID,
		Session:   sessionID,
		Name:      player.Name,
		Filter:    m.Filter,
		SlotAttrs: m.SlotAttrs,
	}
}
