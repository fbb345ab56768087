package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-lobby/internal/listener"
)

type ListenerConfig struct {
	Port uint16 `json:"port"`
}

func (cl *ListenerConfig) validate() error {
	el := errors.NewErrorList()

	if cl.Port == 0 {
		el.Add(fmt.Errorf("port must be set to a positive integer"))
	}

	return el.Err()
}

func (cl *ListenerConfig) BuildListener(cm *listener.ConnectionManager) *listener.TcpListener {
	return listener.NewTcpListener(cl.Port, cm)
}
