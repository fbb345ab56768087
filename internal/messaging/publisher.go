package messaging

import "fmt"

// SessionPublisher delivers payloads to individual session NATS
// subjects. It satisfies the fanout's Publisher interface.
type SessionPublisher struct {
	server *Server
}

// NewSessionPublisher wraps a broker Server for per-session delivery.
func NewSessionPublisher(server *Server) *SessionPublisher {
	return &SessionPublisher{server: server}
}

// SessionSubject names the per-session notification subject.
func SessionSubject(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

func (p *SessionPublisher) Publish(sessionID string, data []byte) error {
	return p.server.Publish(SessionSubject(sessionID), data)
}

// Subscribe registers a handler for one session's subject.
func (p *SessionPublisher) Subscribe(sessionID string, handler func(data []byte)) (func(), error) {
	return p.server.Subscribe(SessionSubject(sessionID), handler)
}
