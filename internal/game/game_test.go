package game

import (
	"errors"
	"sync"
	"testing"

	"github.com/pixil98/go-testutil"
)

// captureSink records every enqueued event for inspection.
type captureSink struct {
	mu     sync.Mutex
	events []Event
	recips [][]Recipient
}

func (c *captureSink) Enqueue(ev Event, recipients []Recipient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.recips = append(c.recips, recipients)
}

func (c *captureSink) kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventKind, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Kind
	}
	return out
}

func member(p PlayerID, name string) Member {
	return Member{Player: p, Session: name + "-session", Name: name}
}

func TestGameJoin(t *testing.T) {
	tests := map[string]struct {
		capacity int
		joins    []Member
		expSlots []int
		expErr   error
		expState State
	}{
		"fills ascending slots": {
			capacity: 4,
			joins:    []Member{member(2, "bob"), member(3, "carol")},
			expSlots: []int{1, 2},
			expState: StateOpen,
		},
		"last join fills the game": {
			capacity: 3,
			joins:    []Member{member(2, "bob"), member(3, "carol")},
			expSlots: []int{1, 2},
			expState: StateFull,
		},
		"join past capacity fails": {
			capacity: 2,
			joins:    []Member{member(2, "bob"), member(3, "carol")},
			expSlots: []int{1},
			expErr:   ErrGameFull,
			expState: StateFull,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g := newGame(1, tt.capacity, nil, 0, member(1, "alice"), NopSink{})

			var err error
			var slots []int
			for _, m := range tt.joins {
				var idx int
				idx, err = g.Join(m)
				if err != nil {
					break
				}
				slots = append(slots, idx)
			}

			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Fatalf("expected error %v, got %v", tt.expErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			testutil.AssertEqual(t, "join count", len(slots), len(tt.expSlots))
			for i := range tt.expSlots {
				testutil.AssertEqual(t, "slot", slots[i], tt.expSlots[i])
			}
			testutil.AssertEqual(t, "state", g.State(), tt.expState)
		})
	}
}

func TestGameJoinReusesLowestFreedSlot(t *testing.T) {
	g := newGame(1, 4, nil, 0, member(1, "alice"), NopSink{})
	if _, err := g.Join(member(2, "bob")); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := g.Join(member(3, "carol")); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := g.Leave(2, RemoveLeft); err != nil {
		t.Fatalf("leave: %v", err)
	}

	idx, err := g.Join(member(4, "dave"))
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	testutil.AssertEqual(t, "slot", idx, 1)
}

func TestGameConcurrentJoinSingleSlot(t *testing.T) {
	g := newGame(1, 2, nil, 0, member(1, "alice"), NopSink{})

	const contenders = 16
	var wg sync.WaitGroup
	var won, full int
	var mu sync.Mutex

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(p PlayerID) {
			defer wg.Done()
			_, err := g.Join(member(p, "p"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrGameFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(PlayerID(100 + i))
	}
	wg.Wait()

	testutil.AssertEqual(t, "winners", won, 1)
	testutil.AssertEqual(t, "refused", full, contenders-1)
	testutil.AssertEqual(t, "state", g.State(), StateFull)
}

func TestGameHostMigration(t *testing.T) {
	tests := map[string]struct {
		leave    PlayerID
		expHost  PlayerID
		expKinds []EventKind
	}{
		"host departure migrates to lowest occupied slot": {
			leave:    1,
			expHost:  2,
			expKinds: []EventKind{EventPlayerJoined, EventPlayerJoined, EventPlayerLeft, EventHostMigrated},
		},
		"non-host departure keeps host": {
			leave:    2,
			expHost:  1,
			expKinds: []EventKind{EventPlayerJoined, EventPlayerJoined, EventPlayerLeft},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			sink := &captureSink{}
			g := newGame(1, 4, nil, 0, member(1, "alice"), sink)
			if _, err := g.Join(member(2, "bob")); err != nil {
				t.Fatalf("join: %v", err)
			}
			if _, err := g.Join(member(3, "carol")); err != nil {
				t.Fatalf("join: %v", err)
			}

			empty, err := g.Leave(tt.leave, RemoveLeft)
			if err != nil {
				t.Fatalf("leave: %v", err)
			}

			testutil.AssertEqual(t, "empty", empty, false)
			testutil.AssertEqual(t, "host", g.Host(), tt.expHost)
			testutil.AssertEqual(t, "state", g.State(), StateOpen)

			kinds := sink.kinds()
			testutil.AssertEqual(t, "event count", len(kinds), len(tt.expKinds))
			for i := range tt.expKinds {
				testutil.AssertEqual(t, "event kind", kinds[i], tt.expKinds[i])
			}
		})
	}
}

func TestGameClosesWhenEmpty(t *testing.T) {
	sink := &captureSink{}
	g := newGame(1, 4, nil, 0, member(1, "alice"), sink)

	empty, err := g.Leave(1, RemoveLeft)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}

	testutil.AssertEqual(t, "empty", empty, true)
	testutil.AssertEqual(t, "state", g.State(), StateClosed)

	// A closed game refuses every further operation.
	if _, err := g.Join(member(2, "bob")); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound on join, got %v", err)
	}
	if _, err := g.Leave(1, RemoveLeft); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound on leave, got %v", err)
	}
	if err := g.SetAttributes(1, Attrs{{Key: "mode", Value: "dm"}}); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound on set attributes, got %v", err)
	}

	kinds := sink.kinds()
	testutil.AssertEqual(t, "final event", kinds[len(kinds)-1], EventGameClosed)
}

func TestGameLeaveEventNotifiesDepartingPlayer(t *testing.T) {
	sink := &captureSink{}
	g := newGame(1, 4, nil, 0, member(1, "alice"), sink)
	if _, err := g.Join(member(2, "bob")); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := g.Leave(2, RemoveLeft); err != nil {
		t.Fatalf("leave: %v", err)
	}

	// The player_left recipients are captured before the slot empties.
	last := sink.recips[len(sink.recips)-1]
	testutil.AssertEqual(t, "recipient count", len(last), 2)
	testutil.AssertEqual(t, "departing session", last[1].Session, "bob-session")
}

func TestGameKick(t *testing.T) {
	tests := map[string]struct {
		caller PlayerID
		target PlayerID
		expErr error
	}{
		"host kicks member": {
			caller: 1,
			target: 2,
		},
		"non-host cannot kick": {
			caller: 2,
			target: 1,
			expErr: ErrNotHost,
		},
		"host cannot kick itself": {
			caller: 1,
			target: 1,
			expErr: ErrPlayerNotInGame,
		},
		"target not in game": {
			caller: 1,
			target: 9,
			expErr: ErrPlayerNotInGame,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			sink := &captureSink{}
			g := newGame(1, 4, nil, 0, member(1, "alice"), sink)
			if _, err := g.Join(member(2, "bob")); err != nil {
				t.Fatalf("join: %v", err)
			}

			_, err := g.Kick(tt.caller, tt.target)
			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Fatalf("expected error %v, got %v", tt.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("kick: %v", err)
			}

			kinds := sink.kinds()
			last := sink.events[len(sink.events)-1]
			testutil.AssertEqual(t, "event kind", kinds[len(kinds)-1], EventPlayerLeft)
			testutil.AssertEqual(t, "reason", last.Reason, RemoveKicked)
		})
	}
}

func TestGameHostOnlyMutations(t *testing.T) {
	sink := &captureSink{}
	g := newGame(1, 4, Attrs{{Key: "mode", Value: "dm"}}, 0, member(1, "alice"), sink)
	if _, err := g.Join(member(2, "bob")); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := g.SetAttributes(2, Attrs{{Key: "mode", Value: "ctf"}}); !errors.Is(err, ErrNotHost) {
		t.Errorf("expected ErrNotHost, got %v", err)
	}
	if err := g.SetSetting(2, 0x1f); !errors.Is(err, ErrNotHost) {
		t.Errorf("expected ErrNotHost, got %v", err)
	}

	if err := g.SetAttributes(1, Attrs{{Key: "map", Value: "ruins"}}); err != nil {
		t.Fatalf("set attributes: %v", err)
	}
	if err := g.SetSetting(1, 0x1f); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	snap := g.Snapshot()
	testutil.AssertEqual(t, "setting", snap.Setting, uint16(0x1f))
	v, ok := snap.Attrs.Get("map")
	testutil.AssertEqual(t, "merged key found", ok, true)
	testutil.AssertEqual(t, "merged value", v, "ruins")
	v, _ = snap.Attrs.Get("mode")
	testutil.AssertEqual(t, "original key kept", v, "dm")

	// Attribute changes fan out a full replacement set.
	last := sink.events[len(sink.events)-2]
	testutil.AssertEqual(t, "attrs event kind", last.Kind, EventAttrsChanged)
	testutil.AssertEqual(t, "attrs event size", len(last.Attrs), 2)
}

func TestGameJoinable(t *testing.T) {
	g := newGame(1, 2, Attrs{{Key: "mode", Value: "dm"}}, 0, member(1, "alice"), NopSink{})

	tests := map[string]struct {
		filter Attrs
		fill   bool
		exp    JoinableState
	}{
		"open and matching": {
			filter: Attrs{{Key: "mode", Value: "dm"}},
			exp:    Joinable,
		},
		"open with empty filter": {
			exp: Joinable,
		},
		"attribute mismatch": {
			filter: Attrs{{Key: "mode", Value: "ctf"}},
			exp:    NoMatch,
		},
		"matching but full": {
			filter: Attrs{{Key: "mode", Value: "dm"}},
			fill:   true,
			exp:    Full,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if tt.fill {
				if _, err := g.Join(member(2, "bob")); err != nil {
					t.Fatalf("join: %v", err)
				}
				defer g.Leave(2, RemoveLeft)
			}
			testutil.AssertEqual(t, "joinable", g.Joinable(tt.filter), tt.exp)
		})
	}
}

func TestGameEventSequencing(t *testing.T) {
	sink := &captureSink{}
	g := newGame(7, 4, nil, 0, member(1, "alice"), sink)

	if _, err := g.Join(member(2, "bob")); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := g.SetSetting(1, 3); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if _, err := g.Leave(2, RemoveLeft); err != nil {
		t.Fatalf("leave: %v", err)
	}

	for i, ev := range sink.events {
		testutil.AssertEqual(t, "seq", ev.Seq, uint64(i+1))
		testutil.AssertEqual(t, "game id", ev.Game, ID(7))
	}
}
