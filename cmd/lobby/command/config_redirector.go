package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-lobby/internal/redirector"
)

type RedirectorConfig struct {
	// Port is where bootstrap connections land. Zero disables the
	// redirector worker entirely.
	Port uint16 `json:"port,omitempty"`
	// AdvertiseHost is the session server address handed to clients.
	AdvertiseHost string `json:"advertise_host,omitempty"`
	// AdvertisePort is the session server port handed to clients.
	AdvertisePort uint16 `json:"advertise_port,omitempty"`
}

func (c *RedirectorConfig) validate() error {
	if c.Port == 0 {
		return nil
	}

	el := errors.NewErrorList()
	if c.AdvertiseHost == "" {
		el.Add(fmt.Errorf("advertise_host is required when the redirector is enabled"))
	}
	if c.AdvertisePort == 0 {
		el.Add(fmt.Errorf("advertise_port is required when the redirector is enabled"))
	}

	return el.Err()
}

func (c *RedirectorConfig) BuildRedirector() *redirector.Redirector {
	return redirector.New(c.Port, redirector.Target{
		Host: c.AdvertiseHost,
		Port: c.AdvertisePort,
	})
}
