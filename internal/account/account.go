// Package account defines the narrow repository interface the core
// uses for credentials and session statistics. Implementations live in
// subpackages.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/pixil98/go-lobby/internal/game"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyOnline      = errors.New("account already online")
	ErrStoreUnavailable   = errors.New("account store unavailable")
)

// Player is the authenticated identity attached to a session.
type Player struct {
	ID    game.PlayerID
	Email string
	Name  string
	// Token is issued on password login and accepted for silent
	// re-authentication until the next password login rotates it.
	Token string
}

// SessionStats summarizes one finished session for reporting. Recording
// is fire-and-forget from the core's perspective.
type SessionStats struct {
	ConnectedAt time.Time
	Duration    time.Duration
	GamesHosted int
	GamesJoined int
}

// Store verifies credentials and records per-session statistics.
type Store interface {
	// VerifyPassword checks email/password credentials, rotating and
	// returning the player's session token on success.
	VerifyPassword(ctx context.Context, email, password string) (Player, error)
	// VerifyToken checks a previously issued session token.
	VerifyToken(ctx context.Context, id game.PlayerID, token string) (Player, error)
	// RecordSessionStats persists stats for a finished session.
	RecordSessionStats(ctx context.Context, id game.PlayerID, stats SessionStats) error
}
