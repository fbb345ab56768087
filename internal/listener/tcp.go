package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/pixil98/go-log"
	"github.com/sirupsen/logrus"
)

// TcpListener accepts client connections and hands each one to the
// connection manager on its own goroutine.
type TcpListener struct {
	port uint16
	cm   *ConnectionManager
}

func NewTcpListener(port uint16, cm *ConnectionManager) *TcpListener {
	return &TcpListener{
		port: port,
		cm:   cm,
	}
}

func (l *TcpListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d is already in use (another server running?)", l.port)
		}
		return fmt.Errorf("listening on port %d: %w", l.port, err)
	}

	logger := log.GetLogger(ctx)
	logger.Infof("accepting connections on %s", ln.Addr())

	// Connections share a context canceled together at shutdown.
	connCtx, cancelConns := context.WithCancel(context.Background())
	connCtx = log.SetLogger(connCtx, logger)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			cancelConns()
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handle(connCtx, logger, conn)
		}()
	}
}

func (l *TcpListener) handle(ctx context.Context, logger logrus.FieldLogger, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debugf("closing connection: %s", err)
		}
	}()

	l.cm.AcceptConnection(ctx, conn)
}
