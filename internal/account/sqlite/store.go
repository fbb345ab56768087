// Package sqlite provides the SQLite-backed account store.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/pixil98/go-lobby/internal/account"
	"github.com/pixil98/go-lobby/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT    NOT NULL UNIQUE,
	display_name  TEXT    NOT NULL,
	password_hash TEXT    NOT NULL,
	session_token TEXT    NOT NULL DEFAULT '',
	created_at    TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE TABLE IF NOT EXISTS session_stats (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id    INTEGER NOT NULL REFERENCES players(id),
	connected_at TEXT    NOT NULL,
	duration_ms  INTEGER NOT NULL,
	games_hosted INTEGER NOT NULL,
	games_joined INTEGER NOT NULL
);
`

// Store is a SQLite-backed account.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the account database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("account store path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening account db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging account db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying account schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePlayer registers a new account. Used by seeding tools and
// tests; the game clients themselves only ever log in.
func (s *Store) CreatePlayer(ctx context.Context, email, name, password string) (account.Player, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return account.Player{}, fmt.Errorf("hashing password: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (email, display_name, password_hash) VALUES (?, ?, ?)`,
		strings.ToLower(email), name, string(hash))
	if err != nil {
		return account.Player{}, fmt.Errorf("inserting player: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return account.Player{}, fmt.Errorf("reading player id: %w", err)
	}

	return account.Player{ID: game.PlayerID(id), Email: strings.ToLower(email), Name: name}, nil
}

// VerifyPassword implements account.Store. A successful login rotates
// the player's session token.
func (s *Store) VerifyPassword(ctx context.Context, email, password string) (account.Player, error) {
	var (
		p    account.Player
		hash string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash FROM players WHERE email = ?`,
		strings.ToLower(email))
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Player{}, account.ErrInvalidCredentials
		}
		return account.Player{}, fmt.Errorf("%w: %w", account.ErrStoreUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return account.Player{}, account.ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return account.Player{}, fmt.Errorf("%w: %w", account.ErrStoreUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE players SET session_token = ? WHERE id = ?`, token, p.ID); err != nil {
		return account.Player{}, fmt.Errorf("%w: %w", account.ErrStoreUnavailable, err)
	}

	p.Token = token
	return p, nil
}

// VerifyToken implements account.Store.
func (s *Store) VerifyToken(ctx context.Context, id game.PlayerID, token string) (account.Player, error) {
	if token == "" {
		return account.Player{}, account.ErrInvalidCredentials
	}

	var (
		p      account.Player
		stored string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, session_token FROM players WHERE id = ?`, uint64(id))
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Player{}, account.ErrInvalidCredentials
		}
		return account.Player{}, fmt.Errorf("%w: %w", account.ErrStoreUnavailable, err)
	}

	if stored == "" || stored != token {
		return account.Player{}, account.ErrInvalidCredentials
	}

	p.Token = stored
	return p, nil
}

// RecordSessionStats implements account.Store. Failures are logged by
// callers at most; nothing in the session teardown path depends on
// this write.
func (s *Store) RecordSessionStats(ctx context.Context, id game.PlayerID, stats account.SessionStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_stats (player_id, connected_at, duration_ms, games_hosted, games_joined)
		 VALUES (?, ?, ?, ?, ?)`,
		uint64(id),
		stats.ConnectedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		stats.Duration.Milliseconds(),
		stats.GamesHosted,
		stats.GamesJoined)
	if err != nil {
		slog.WarnContext(ctx, "recording session stats", "player", id, "error", err)
		return fmt.Errorf("inserting session stats: %w", err)
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
