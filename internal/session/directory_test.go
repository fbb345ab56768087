package session

import (
	"errors"
	"testing"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-lobby/internal/account"
)

func TestDirectoryRegister(t *testing.T) {
	d := NewDirectory(true)

	if err := d.Register(1, "s1", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}

	sessionID, ok := d.Lookup(1)
	testutil.AssertEqual(t, "found", ok, true)
	testutil.AssertEqual(t, "session", sessionID, "s1")
	testutil.AssertEqual(t, "online", d.OnlineCount(), 1)
}

func TestDirectorySecondLoginEvicts(t *testing.T) {
	d := NewDirectory(true)

	evicted := false
	if err := d.Register(1, "s1", func() { evicted = true }); err != nil {
		t.Fatalf("register: %v", err)
	}

	// The new binding must be visible before Register returns, and the
	// prior session's eviction must have run.
	if err := d.Register(1, "s2", func() {}); err != nil {
		t.Fatalf("second register: %v", err)
	}

	testutil.AssertEqual(t, "evicted", evicted, true)
	sessionID, _ := d.Lookup(1)
	testutil.AssertEqual(t, "session", sessionID, "s2")
	testutil.AssertEqual(t, "online", d.OnlineCount(), 1)
}

func TestDirectorySecondLoginRefused(t *testing.T) {
	d := NewDirectory(false)

	if err := d.Register(1, "s1", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := d.Register(1, "s2", func() {})
	if !errors.Is(err, account.ErrAlreadyOnline) {
		t.Fatalf("expected ErrAlreadyOnline, got %v", err)
	}

	sessionID, _ := d.Lookup(1)
	testutil.AssertEqual(t, "original kept", sessionID, "s1")
}

func TestDirectoryDeregister(t *testing.T) {
	tests := map[string]struct {
		deregister string
		expOnline  int
	}{
		"current session clears binding": {
			deregister: "s2",
			expOnline:  0,
		},
		"stale session leaves successor bound": {
			deregister: "s1",
			expOnline:  1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			d := NewDirectory(true)
			if err := d.Register(1, "s1", func() {}); err != nil {
				t.Fatalf("register: %v", err)
			}
			if err := d.Register(1, "s2", func() {}); err != nil {
				t.Fatalf("second register: %v", err)
			}

			d.Deregister(1, tt.deregister)
			testutil.AssertEqual(t, "online", d.OnlineCount(), tt.expOnline)
		})
	}
}
