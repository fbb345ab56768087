package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

type GamesConfig struct {
	// MaxCapacity bounds the slot count a host may request.
	MaxCapacity int `json:"max_capacity,omitempty"`
}

func (c *GamesConfig) validate() error {
	el := errors.NewErrorList()

	if c.MaxCapacity < 0 {
		el.Add(fmt.Errorf("max_capacity must not be negative"))
	}

	return el.Err()
}
