package listener

import (
	"context"
	"io"
	"log/slog"

	"github.com/pixil98/go-lobby/internal/session"
)

type ConnectionManager struct {
	sm *session.Manager
}

func NewConnectionManager(sm *session.Manager) *ConnectionManager {
	return &ConnectionManager{
		sm: sm,
	}
}

func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn io.ReadWriteCloser) {
	if err := m.sm.RunSession(ctx, conn); err != nil {
		slog.WarnContext(ctx, "client session", "error", err)
	}
}
