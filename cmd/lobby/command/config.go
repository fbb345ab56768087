package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

type Config struct {
	Listeners  []ListenerConfig `json:"listeners"`
	Nats       NatsConfig       `json:"nats"`
	Storage    StorageConfig    `json:"storage"`
	Matchmaker MatchmakerConfig `json:"matchmaker"`
	Games      GamesConfig      `json:"games"`
	Sessions   SessionsConfig   `json:"sessions"`
	Redirector RedirectorConfig `json:"redirector,omitempty"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if len(c.Listeners) == 0 {
		el.Add(fmt.Errorf("at least one listener is required"))
	}
	for i, l := range c.Listeners {
		err := l.validate()
		if err != nil {
			el.Add(fmt.Errorf("listener %d: %w", i, err))
		}
	}

	el.Add(c.Nats.validate())
	el.Add(c.Storage.validate())
	el.Add(c.Matchmaker.validate())
	el.Add(c.Games.validate())
	el.Add(c.Redirector.validate())

	return el.Err()
}

type SessionsConfig struct {
	// RefuseSecondLogin turns the directory's takeover behavior into a
	// hard AlreadyOnline failure for the second connection.
	RefuseSecondLogin bool `json:"refuse_second_login,omitempty"`
}
