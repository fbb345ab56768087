// Package messaging runs the embedded NATS broker that carries all
// session-bound notifications. Each live session subscribes to its own
// subject; publishers never talk to connections directly.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// errNotStarted guards pub/sub calls made before Start has connected
// the in-process client.
var errNotStarted = errors.New("messaging server not started")

const defaultReadyTimeout = 10 * time.Second

// Server is an embedded NATS instance plus the single in-process
// client connection every lobby component shares. Start runs it as a
// service worker until the context is canceled.
type Server struct {
	host         string
	port         int
	readyTimeout time.Duration

	ns   *server.Server
	conn *nats.Conn
}

// Option configures a Server before the embedded instance is built.
type Option func(*Server)

// WithHost sets the listen host. The broker is an internal transport,
// so it defaults to loopback.
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// WithPort sets the listen port. Zero picks an ephemeral port.
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// WithReadyTimeout bounds how long Start waits for the embedded
// instance to accept connections.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Server) { s.readyTimeout = d }
}

// NewServer builds the embedded instance. It does not listen until
// Start runs.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		host:         "127.0.0.1",
		readyTimeout: defaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:   s.host,
		Port:   s.port,
		NoSigs: true, // signal handling belongs to the application
	})
	if err != nil {
		return nil, fmt.Errorf("building embedded nats server: %w", err)
	}
	s.ns = ns

	return s, nil
}

// Start brings the broker up, connects the shared client, and blocks
// until ctx is canceled, then drains and shuts the instance down.
func (s *Server) Start(ctx context.Context) error {
	s.ns.Start()
	if !s.ns.ReadyForConnections(s.readyTimeout) {
		return fmt.Errorf("nats server not ready after %s", s.readyTimeout)
	}

	conn, err := nats.Connect(s.ns.ClientURL())
	if err != nil {
		return fmt.Errorf("connecting in-process nats client: %w", err)
	}
	s.conn = conn

	slog.InfoContext(ctx, "messaging server listening", "addr", s.ns.Addr())

	<-ctx.Done()
	s.conn.Close()
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	return nil
}

// Subscribe calls handler for every message on subject and returns an
// unsubscribe function.
func (s *Server) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	if s.conn == nil {
		return nil, errNotStarted
	}
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { sub.Unsubscribe() }, nil
}

// Publish sends data to subject.
func (s *Server) Publish(subject string, data []byte) error {
	if s.conn == nil {
		return errNotStarted
	}
	return s.conn.Publish(subject, data)
}
