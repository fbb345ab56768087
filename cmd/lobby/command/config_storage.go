package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-lobby/internal/account/sqlite"
)

type StorageConfig struct {
	// Accounts is the path of the SQLite account database. Created on
	// first start if missing.
	Accounts string `json:"accounts"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()

	if c.Accounts == "" {
		el.Add(fmt.Errorf("accounts path is required"))
	}

	return el.Err()
}

func (c *StorageConfig) BuildAccountStore() (*sqlite.Store, error) {
	store, err := sqlite.Open(c.Accounts)
	if err != nil {
		return nil, fmt.Errorf("opening account store: %w", err)
	}
	return store, nil
}
