// Package protocol defines the closed set of messages exchanged with
// game clients, grouped by protocol phase (auth, game, matchmaking),
// and the framed channel that carries them. The vendor's own tag-based
// byte layout is handled by the transport wrapper; everything above it
// works with these typed variants.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pixil98/go-lobby/internal/game"
)

// Type discriminates message variants on the wire.
type Type string

const (
	// Auth phase, client to server.
	TypeLogin      Type = "login"
	TypeTokenLogin Type = "token_login"
	TypeLogout     Type = "logout"

	// Game phase, client to server.
	TypeHostGame      Type = "host_game"
	TypeLeaveGame     Type = "leave_game"
	TypeSetAttributes Type = "set_attributes"
	TypeSetSetting    Type = "set_setting"
	TypeKickPlayer    Type = "kick_player"

	// Matchmaking phase, client to server.
	TypeSearch       Type = "search"
	TypeCancelSearch Type = "cancel_search"

	TypePing Type = "ping"

	// Responses, server to client.
	TypeWelcome   Type = "welcome"
	TypeGameInfo  Type = "game_info"
	TypeSearching Type = "searching"
	TypeAck       Type = "ack"
	TypeError     Type = "error"
	TypePong      Type = "pong"

	// Notifications, server to client.
	TypePlayerJoined   Type = "player_joined"
	TypePlayerLeft     Type = "player_left"
	TypeHostMigrated   Type = "host_migrated"
	TypeAttrsChanged   Type = "attributes_changed"
	TypeSettingChanged Type = "setting_changed"
	TypeGameClosed     Type = "game_closed"
	TypeEvicted        Type = "evicted"
)

// Message is one decoded protocol message.
type Message interface {
	MessageType() Type
}

// Login authenticates with email and password.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenLogin silently re-authenticates with a token issued on a
// previous login.
type TokenLogin struct {
	Player game.PlayerID `json:"player"`
	Token  string        `json:"token"`
}

// Logout ends the session voluntarily.
type Logout struct{}

// HostGame asks the server to create a game with the caller as host.
type HostGame struct {
	Capacity  int        `json:"capacity"`
	Attrs     game.Attrs `json:"attrs,omitempty"`
	Setting   uint16     `json:"setting"`
	SlotAttrs game.Attrs `json:"slot_attrs,omitempty"`
}

// LeaveGame removes the caller from their current game.
type LeaveGame struct{}

// SetAttributes updates the caller's game attributes (host only).
type SetAttributes struct {
	Attrs game.Attrs `json:"attrs"`
}

// SetSetting updates the caller's game settings word (host only).
type SetSetting struct {
	Setting uint16 `json:"setting"`
}

// KickPlayer removes another player from the caller's game (host only).
type KickPlayer struct {
	Player game.PlayerID `json:"player"`
}

// Search enqueues a matchmaking ticket with an attribute filter. Keys
// absent from the filter are wildcards.
type Search struct {
	Filter    game.Attrs `json:"filter,omitempty"`
	SlotAttrs game.Attrs `json:"slot_attrs,omitempty"`
}

// CancelSearch withdraws the caller's outstanding ticket, if any.
type CancelSearch struct{}

// Ping keeps the connection alive.
type Ping struct{}

// Welcome confirms authentication.
type Welcome struct {
	Player game.PlayerID `json:"player"`
	Name   string        `json:"name"`
	Token  string        `json:"token"`
}

// GameInfo carries a full game snapshot plus the recipient's slot.
// Sent when a game is created for, joined by, or matched to the
// recipient.
type GameInfo struct {
	Game game.Snapshot `json:"game"`
	Slot int           `json:"slot"`
}

// Searching confirms a matchmaking ticket was enqueued.
type Searching struct {
	Ticket string `json:"ticket"`
}

// Ack confirms an operation with no other payload.
type Ack struct {
	Of Type `json:"of"`
}

// Error reports a recoverable protocol-level failure. The connection
// stays open.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Pong answers a Ping.
type Pong struct{}

// PlayerJoined announces a new occupant of a game slot.
type PlayerJoined struct {
	Game   game.ID       `json:"game"`
	Player game.PlayerID `json:"player"`
	Name   string        `json:"name,omitempty"`
	Slot   int           `json:"slot"`
	Attrs  game.Attrs    `json:"attrs,omitempty"`
}

// PlayerLeft announces a slot being vacated.
type PlayerLeft struct {
	Game   game.ID           `json:"game"`
	Player game.PlayerID     `json:"player"`
	Slot   int               `json:"slot"`
	Reason game.RemoveReason `json:"reason"`
}

// HostMigrated announces a completed host handover.
type HostMigrated struct {
	Game game.ID       `json:"game"`
	Host game.PlayerID `json:"host"`
	Slot int           `json:"slot"`
}

// AttrsChanged carries a game's full attribute set after a host edit.
type AttrsChanged struct {
	Game  game.ID    `json:"game"`
	Attrs game.Attrs `json:"attrs"`
}

// SettingChanged carries a game's new settings word.
type SettingChanged struct {
	Game    game.ID `json:"game"`
	Setting uint16  `json:"setting"`
}

// GameClosed announces that a game was destroyed.
type GameClosed struct {
	Game game.ID `json:"game"`
}

// Evicted tells a client its session was terminated server-side, for
// example because the same account logged in elsewhere.
type Evicted struct {
	Reason string `json:"reason"`
}

func (Login) MessageType() Type          { return TypeLogin }
func (TokenLogin) MessageType() Type     { return TypeTokenLogin }
func (Logout) MessageType() Type         { return TypeLogout }
func (HostGame) MessageType() Type       { return TypeHostGame }
func (LeaveGame) MessageType() Type      { return TypeLeaveGame }
func (SetAttributes) MessageType() Type  { return TypeSetAttributes }
func (SetSetting) MessageType() Type     { return TypeSetSetting }
func (KickPlayer) MessageType() Type     { return TypeKickPlayer }
func (Search) MessageType() Type         { return TypeSearch }
func (CancelSearch) MessageType() Type   { return TypeCancelSearch }
func (Ping) MessageType() Type           { return TypePing }
func (Welcome) MessageType() Type        { return TypeWelcome }
func (GameInfo) MessageType() Type       { return TypeGameInfo }
func (Searching) MessageType() Type      { return TypeSearching }
func (Ack) MessageType() Type            { return TypeAck }
func (Error) MessageType() Type          { return TypeError }
func (Pong) MessageType() Type           { return TypePong }
func (PlayerJoined) MessageType() Type   { return TypePlayerJoined }
func (PlayerLeft) MessageType() Type     { return TypePlayerLeft }
func (HostMigrated) MessageType() Type   { return TypeHostMigrated }
func (AttrsChanged) MessageType() Type   { return TypeAttrsChanged }
func (SettingChanged) MessageType() Type { return TypeSettingChanged }
func (GameClosed) MessageType() Type     { return TypeGameClosed }
func (Evicted) MessageType() Type        { return TypeEvicted }

type envelope struct {
	Type Type            `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Marshal encodes a message into an envelope payload.
func Marshal(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s body: %w", msg.MessageType(), err)
	}
	return json.Marshal(envelope{Type: msg.MessageType(), Body: body})
}

// Unmarshal decodes an envelope payload into its typed variant.
// Unknown types are an error: the message set is closed.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var msg Message
	switch env.Type {
	case TypeLogin:
		msg = &Login{}
	case TypeTokenLogin:
		msg = &TokenLogin{}
	case TypeLogout:
		msg = &Logout{}
	case TypeHostGame:
		msg = &HostGame{}
	case TypeLeaveGame:
		msg = &LeaveGame{}
	case TypeSetAttributes:
		msg = &SetAttributes{}
	case TypeSetSetting:
		msg = &SetSetting{}
	case TypeKickPlayer:
		msg = &KickPlayer{}
	case TypeSearch:
		msg = &Search{}
	case TypeCancelSearch:
		msg = &CancelSearch{}
	case TypePing:
		msg = &Ping{}
	case TypeWelcome:
		msg = &Welcome{}
	case TypeGameInfo:
		msg = &GameInfo{}
	case TypeSearching:
		msg = &Searching{}
	case TypeAck:
		msg = &Ack{}
	case TypeError:
		msg = &Error{}
	case TypePong:
		msg = &Pong{}
	case TypePlayerJoined:
		msg = &PlayerJoined{}
	case TypePlayerLeft:
		msg = &PlayerLeft{}
	case TypeHostMigrated:
		msg = &HostMigrated{}
	case TypeAttrsChanged:
		msg = &AttrsChanged{}
	case TypeSettingChanged:
		msg = &SettingChanged{}
	case TypeGameClosed:
		msg = &GameClosed{}
	case TypeEvicted:
		msg = &Evicted{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, msg); err != nil {
			return nil, fmt.Errorf("decoding %s body: %w", env.Type, err)
		}
	}
	return msg, nil
}
