// Package redirector implements the bootstrap exchange: a client's
// first connection lands here, receives the session server's host and
// port, and reconnects there. Stateless; one request, one response.
package redirector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pixil98/go-log"

	"github.com/pixil98/go-lobby/internal/protocol"
)

const exchangeTimeout = 5 * time.Second

// Target is the advertised session server address.
type Target struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// Redirector answers bootstrap requests with a fixed target. It has no
// runtime interaction with the session core.
type Redirector struct {
	port   uint16
	target Target
}

func New(port uint16, target Target) *Redirector {
	return &Redirector{
		port:   port,
		target: target,
	}
}

func (r *Redirector) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.port))
	if err != nil {
		return fmt.Errorf("listening on redirector port %d: %w", r.port, err)
	}

	logger := log.GetLogger(ctx)
	logger.Infof("redirector listening on %s (target %s:%d)", ln.Addr(), r.target.Host, r.target.Port)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting redirect connection: %w", err)
		}

		go func() {
			if err := r.serve(conn); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debugf("redirect exchange: %s", err)
			}
		}()
	}
}

// serve performs the single request/response exchange and closes the
// connection.
func (r *Redirector) serve(conn net.Conn) error {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(exchangeTimeout)); err != nil {
		return fmt.Errorf("setting exchange deadline: %w", err)
	}

	// The request frame carries nothing the redirector needs; it only
	// proves the client speaks the framing.
	if _, err := protocol.ReadFrame(conn); err != nil {
		return fmt.Errorf("reading redirect request: %w", err)
	}

	payload, err := json.Marshal(r.target)
	if err != nil {
		return fmt.Errorf("encoding redirect target: %w", err)
	}
	if err := protocol.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("writing redirect response: %w", err)
	}
	return nil
}
