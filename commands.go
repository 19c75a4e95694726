// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Command is one of the typed commands defined by this package. Each command knows its own name,
// version and body, and can be turned into a [Request] with [NewRequest].
type Command interface {
	CommandName() string
	CommandVersion() int
	isCommand()
}

// bodyCommand is implemented by commands whose body is not the JSON encoding of the command value
// itself.
type bodyCommand interface {
	commandBody() any
}

// v2 marks a command as version 2 and seals it into the [Command] set.
type v2 struct{}

func (v2) CommandVersion() int { return 2 }
func (v2) isCommand()          {}

// NewRequest returns the request that executes cmd.
func NewRequest(cmd Command) Request {
	var body any = cmd
	if b, ok := cmd.(bodyCommand); ok {
		body = b.commandBody()
	}
	return Request{Name: cmd.CommandName(), Version: cmd.CommandVersion(), Body: body}
}

// ServerBroadcast sets the message shown to every player in the top left of their screen.
type ServerBroadcast struct {
	v2
	Message string `json:"Message"`
}

func (ServerBroadcast) CommandName() string { return "ServerBroadcast" }

// ChangeMap immediately switches the server to another map.
type ChangeMap struct {
	v2
	MapName string `json:"MapName"`
}

func (ChangeMap) CommandName() string { return "ChangeMap" }

// KickPlayer removes a player from the server.
type KickPlayer struct {
	v2
	PlayerID string `json:"PlayerId"`
	Reason   string `json:"Reason"`
}

func (KickPlayer) CommandName() string { return "KickPlayer" }

// PunishPlayer kills a player, showing them the reason.
type PunishPlayer struct {
	v2
	PlayerID string `json:"PlayerId"`
	Reason   string `json:"Reason"`
}

func (PunishPlayer) CommandName() string { return "PunishPlayer" }

// TemporaryBanPlayer bans a player for a number of hours.
type TemporaryBanPlayer struct {
	v2
	PlayerID  string `json:"PlayerId"`
	Duration  int    `json:"Duration"`
	Reason    string `json:"Reason"`
	AdminName string `json:"AdminName"`
}

func (TemporaryBanPlayer) CommandName() string { return "TemporaryBanPlayer" }

// PermanentBanPlayer bans a player indefinitely.
type PermanentBanPlayer struct {
	v2
	PlayerID  string `json:"PlayerId"`
	Reason    string `json:"Reason"`
	AdminName string `json:"AdminName"`
}

func (PermanentBanPlayer) CommandName() string { return "PermanentBanPlayer" }

// RemoveTemporaryBan lifts a temporary ban. The server answers 400 when the player is not
// temporarily banned.
type RemoveTemporaryBan struct {
	v2
	PlayerID string `json:"PlayerId"`
}

func (RemoveTemporaryBan) CommandName() string { return "RemoveTemporaryBan" }

// RemovePermanentBan lifts a permanent ban. The server answers 400 when the player is not
// permanently banned.
type RemovePermanentBan struct {
	v2
	PlayerID string `json:"PlayerId"`
}

func (RemovePermanentBan) CommandName() string { return "RemovePermanentBan" }

// MessagePlayer shows a message to a single player.
type MessagePlayer struct {
	v2
	Message  string `json:"Message"`
	PlayerID string `json:"PlayerId"`
}

func (MessagePlayer) CommandName() string { return "MessagePlayer" }

// MessageAllPlayers shows a message to every player on the server.
type MessageAllPlayers struct {
	v2
	Message string `json:"Message"`
}

func (MessageAllPlayers) CommandName() string { return "MessageAllPlayers" }

// AddAdmin grants a player membership of an admin group.
type AddAdmin struct {
	v2
	PlayerID   string `json:"PlayerId"`
	AdminGroup string `json:"AdminGroup"`
	Comment    string `json:"Comment"`
}

func (AddAdmin) CommandName() string { return "AddAdmin" }

// RemoveAdmin revokes a player's admin group membership.
type RemoveAdmin struct {
	v2
	PlayerID string `json:"PlayerId"`
}

func (RemoveAdmin) CommandName() string { return "RemoveAdmin" }

// AddVip grants a player VIP status.
type AddVip struct {
	v2
	PlayerID string `json:"PlayerId"`
	Comment  string `json:"Comment"`
}

func (AddVip) CommandName() string { return "AddVip" }

// RemoveVip revokes a player's VIP status.
type RemoveVip struct {
	v2
	PlayerID string `json:"PlayerId"`
}

func (RemoveVip) CommandName() string { return "RemoveVip" }

// SetWelcomeMessage sets the message shown to players when they join.
type SetWelcomeMessage struct {
	v2
	Message string `json:"Message"`
}

func (SetWelcomeMessage) CommandName() string { return "SetWelcomeMessage" }

// Sections of server information understood by [GetServerInformation].
const (
	InfoPlayers      = "players"
	InfoPlayer       = "player"
	InfoSession      = "session"
	InfoServerConfig = "serverconfig"
	InfoMapRotation  = "maprotation"
	InfoMapSequence  = "mapsequence"
	InfoBannedWords  = "bannedwords"
	InfoVipPlayers   = "vipplayers"
)

// GetServerInformation queries one section of server state. Value is only used by the player
// section, where it holds the player ID.
type GetServerInformation struct {
	v2
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

func (GetServerInformation) CommandName() string { return "GetServerInformation" }

// GetDisplayableCommands lists the commands the server accepts.
type GetDisplayableCommands struct {
	v2
}

func (GetDisplayableCommands) CommandName() string { return "GetDisplayableCommands" }
func (GetDisplayableCommands) commandBody() any    { return "" }

// GetClientReferenceData describes the parameters of another command.
type GetClientReferenceData struct {
	v2
	Command string
}

func (GetClientReferenceData) CommandName() string { return "GetClientReferenceData" }
func (g GetClientReferenceData) commandBody() any  { return g.Command }

// GetAdminLog returns admin log entries from the last LogBackTrackTime seconds, optionally
// filtered by a substring.
type GetAdminLog struct {
	v2
	LogBackTrackTime int    `json:"LogBackTrackTime"`
	Filters          string `json:"Filters"`
}

func (GetAdminLog) CommandName() string { return "GetAdminLog" }

// Run executes cmd and returns its content body. A non-200 status is returned as a
// [*CommandError].
func (c *Client) Run(ctx context.Context, cmd Command) (string, error) {
	req := NewRequest(cmd)
	return c.Execute(ctx, req.Name, req.Version, req.Body)
}

// query executes cmd and decodes its JSON content body into a new T.
func query[T any](ctx context.Context, c *Client, cmd Command) (*T, error) {
	resp, err := c.Do(ctx, NewRequest(cmd))
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	v := new(T)
	if err := resp.Unmarshal(v); err != nil {
		return nil, err
	}
	return v, nil
}

// statusResult turns the expected failure statuses of a command into a false result rather than
// an error.
func statusResult(err error, falseOn StatusCode) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case IsStatus(err, falseOn):
		return false, nil
	}
	return false, err
}

// Broadcast sets the server broadcast message.
func (c *Client) Broadcast(ctx context.Context, message string) error {
	_, err := c.Run(ctx, ServerBroadcast{Message: message})
	return err
}

// ChangeMap immediately switches the server to mapName.
func (c *Client) ChangeMap(ctx context.Context, mapName string) error {
	_, err := c.Run(ctx, ChangeMap{MapName: mapName})
	return err
}

// KickPlayer kicks a player. It returns false when the player is not on the server.
func (c *Client) KickPlayer(ctx context.Context, playerID, reason string) (bool, error) {
	_, err := c.Run(ctx, KickPlayer{PlayerID: playerID, Reason: reason})
	return statusResult(err, StatusBadRequest)
}

// KillPlayer kills a player. It returns false when the player is not on the server or is already
// dead.
func (c *Client) KillPlayer(ctx context.Context, playerID, reason string) (bool, error) {
	_, err := c.Run(ctx, PunishPlayer{PlayerID: playerID, Reason: reason})
	return statusResult(err, StatusInternalError)
}

// BanPlayer bans a player for durationHours, or permanently when durationHours is zero or less.
func (c *Client) BanPlayer(ctx context.Context, playerID, reason, adminName string, durationHours int) error {
	var cmd Command = PermanentBanPlayer{PlayerID: playerID, Reason: reason, AdminName: adminName}
	if durationHours > 0 {
		cmd = TemporaryBanPlayer{PlayerID: playerID, Duration: durationHours, Reason: reason, AdminName: adminName}
	}
	_, err := c.Run(ctx, cmd)
	return err
}

// RemoveTemporaryBan lifts a temporary ban. It returns false when the player was not temporarily
// banned.
func (c *Client) RemoveTemporaryBan(ctx context.Context, playerID string) (bool, error) {
	_, err := c.Run(ctx, RemoveTemporaryBan{PlayerID: playerID})
	return statusResult(err, StatusBadRequest)
}

// RemovePermanentBan lifts a permanent ban. It returns false when the player was not permanently
// banned.
func (c *Client) RemovePermanentBan(ctx context.Context, playerID string) (bool, error) {
	_, err := c.Run(ctx, RemovePermanentBan{PlayerID: playerID})
	return statusResult(err, StatusBadRequest)
}

// UnbanPlayer lifts both temporary and permanent bans of a player concurrently. It returns false
// when the player was not banned at all.
func (c *Client) UnbanPlayer(ctx context.Context, playerID string) (bool, error) {
	var temporary, permanent bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		temporary, err = c.RemoveTemporaryBan(gctx, playerID)
		return err
	})
	g.Go(func() (err error) {
		permanent, err = c.RemovePermanentBan(gctx, playerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return temporary || permanent, nil
}

// MessagePlayer shows a message to a single player.
func (c *Client) MessagePlayer(ctx context.Context, playerID, message string) error {
	_, err := c.Run(ctx, MessagePlayer{PlayerID: playerID, Message: message})
	return err
}

// MessageAllPlayers shows a message to every player.
func (c *Client) MessageAllPlayers(ctx context.Context, message string) error {
	_, err := c.Run(ctx, MessageAllPlayers{Message: message})
	return err
}

// AddAdmin grants a player membership of an admin group.
func (c *Client) AddAdmin(ctx context.Context, playerID, group, comment string) error {
	_, err := c.Run(ctx, AddAdmin{PlayerID: playerID, AdminGroup: group, Comment: comment})
	return err
}

// RemoveAdmin revokes a player's admin group membership.
func (c *Client) RemoveAdmin(ctx context.Context, playerID string) error {
	_, err := c.Run(ctx, RemoveAdmin{PlayerID: playerID})
	return err
}

// AddVip grants a player VIP status.
func (c *Client) AddVip(ctx context.Context, playerID, comment string) error {
	_, err := c.Run(ctx, AddVip{PlayerID: playerID, Comment: comment})
	return err
}

// RemoveVip revokes a player's VIP status.
func (c *Client) RemoveVip(ctx context.Context, playerID string) error {
	_, err := c.Run(ctx, RemoveVip{PlayerID: playerID})
	return err
}

// GetPlayers returns every player currently on the server.
func (c *Client) GetPlayers(ctx context.Context) ([]Player, error) {
	v, err := query[PlayerList](ctx, c, GetServerInformation{Name: InfoPlayers})
	if err != nil {
		return nil, err
	}
	return v.Players, nil
}

// GetPlayer returns a single player by ID.
func (c *Client) GetPlayer(ctx context.Context, playerID string) (*Player, error) {
	return query[Player](ctx, c, GetServerInformation{Name: InfoPlayer, Value: playerID})
}

// GetServerSession returns the state of the current match.
func (c *Client) GetServerSession(ctx context.Context) (*ServerSession, error) {
	return query[ServerSession](ctx, c, GetServerInformation{Name: InfoSession})
}

// GetServerConfig returns static server configuration.
func (c *Client) GetServerConfig(ctx context.Context) (*ServerConfig, error) {
	return query[ServerConfig](ctx, c, GetServerInformation{Name: InfoServerConfig})
}

// GetMapRotation returns the configured map rotation.
func (c *Client) GetMapRotation(ctx context.Context) ([]MapEntry, error) {
	v, err := query[MapList](ctx, c, GetServerInformation{Name: InfoMapRotation})
	if err != nil {
		return nil, err
	}
	return v.Maps, nil
}

// GetMapSequence returns the upcoming map sequence.
func (c *Client) GetMapSequence(ctx context.Context) ([]MapEntry, error) {
	v, err := query[MapList](ctx, c, GetServerInformation{Name: InfoMapSequence})
	if err != nil {
		return nil, err
	}
	return v.Maps, nil
}

// GetBannedWords returns the chat words banned on the server.
func (c *Client) GetBannedWords(ctx context.Context) ([]string, error) {
	v, err := query[BannedWords](ctx, c, GetServerInformation{Name: InfoBannedWords})
	if err != nil {
		return nil, err
	}
	return v.BannedWords, nil
}

// GetAdminLog returns admin log entries from the last seconds, optionally filtered.
func (c *Client) GetAdminLog(ctx context.Context, seconds int, filter string) ([]AdminLogEntry, error) {
	v, err := query[AdminLog](ctx, c, GetAdminLog{LogBackTrackTime: seconds, Filters: filter})
	if err != nil {
		return nil, err
	}
	return v.Entries, nil
}

// GetCommands lists the commands the server accepts.
func (c *Client) GetCommands(ctx context.Context) ([]CommandInfo, error) {
	v, err := query[CommandList](ctx, c, GetDisplayableCommands{})
	if err != nil {
		return nil, err
	}
	return v.Entries, nil
}
