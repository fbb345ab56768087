package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-lobby/internal/messaging"
)

type NatsConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadyTimeout string `json:"ready_timeout"`
}

func (n *NatsConfig) validate() error {
	el := errors.NewErrorList()

	if n.ReadyTimeout != "" {
		_, err := time.ParseDuration(n.ReadyTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing ready_timeout: %w", err))
		}
	}

	return el.Err()
}

func (n *NatsConfig) BuildServer() (*messaging.Server, error) {
	var opts []messaging.Option
	if n.ReadyTimeout != "" {
		d, err := time.ParseDuration(n.ReadyTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing ready_timeout: %w", err)
		}
		opts = append(opts, messaging.WithReadyTimeout(d))
	}
	if n.Host != "" {
		opts = append(opts, messaging.WithHost(n.Host))
	}
	if n.Port != 0 {
		opts = append(opts, messaging.WithPort(n.Port))
	}

	s, err := messaging.NewServer(opts...)
	if err != nil {
		return nil, err
	}

	return s, nil
}
