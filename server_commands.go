// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"strconv"
	"strings"
)

// AddMapToRotation inserts a map into the rotation at Index.
type AddMapToRotation struct {
	v2
	MapName string `json:"MapName"`
	Index   int    `json:"Index"`
}

func (AddMapToRotation) CommandName() string { return "AddMapToRotation" }

// RemoveMapFromRotation removes the map at Index from the rotation.
type RemoveMapFromRotation struct {
	v2
	Index int `json:"Index"`
}

func (RemoveMapFromRotation) CommandName() string { return "RemoveMapFromRotation" }

// AddMapToSequence inserts a map into the upcoming sequence at Index.
type AddMapToSequence struct {
	v2
	MapName string `json:"MapName"`
	Index   int    `json:"Index"`
}

func (AddMapToSequence) CommandName() string { return "AddMapToSequence" }

// RemoveMapFromSequence removes the map at Index from the sequence.
type RemoveMapFromSequence struct {
	v2
	Index int `json:"Index"`
}

func (RemoveMapFromSequence) CommandName() string { return "RemoveMapFromSequence" }

// MoveMapInSequence moves the map at CurrentIndex of the sequence to NewIndex.
type MoveMapInSequence struct {
	v2
	CurrentIndex int `json:"CurrentIndex"`
	NewIndex     int `json:"NewIndex"`
}

func (MoveMapInSequence) CommandName() string { return "MoveMapInSequence" }

// SetMapShuffleEnabled turns shuffling of the map sequence on or off.
type SetMapShuffleEnabled struct {
	v2
	Enable bool `json:"Enable"`
}

func (SetMapShuffleEnabled) CommandName() string { return "SetMapShuffleEnabled" }

// DisbandPlatoon disbands a squad of a team, showing its members the reason.
type DisbandPlatoon struct {
	v2
	TeamIndex  int    `json:"TeamIndex"`
	SquadIndex int    `json:"SquadIndex"`
	Reason     string `json:"Reason"`
}

func (DisbandPlatoon) CommandName() string { return "DisbandPlatoon" }

// RemovePlayerFromPlatoon removes a player from their squad.
type RemovePlayerFromPlatoon struct {
	v2
	PlayerID string `json:"PlayerId"`
	Reason   string `json:"Reason"`
}

func (RemovePlayerFromPlatoon) CommandName() string { return "RemovePlayerFromPlatoon" }

// ForceMode selects when a forced team switch takes effect.
type ForceMode int

const (
	// ForceImmediate switches the player at once, killing them if alive.
	ForceImmediate ForceMode = 0
	// ForceAfterDeath switches the player the next time they die.
	ForceAfterDeath ForceMode = 1
)

// ForceTeamSwitch moves a player to the other team.
type ForceTeamSwitch struct {
	v2
	PlayerID  string    `json:"PlayerId"`
	ForceMode ForceMode `json:"ForceMode"`
}

func (ForceTeamSwitch) CommandName() string { return "ForceTeamSwitch" }

// SetTeamSwitchCooldown sets the minutes a player must wait between switching teams.
type SetTeamSwitchCooldown struct {
	v2
	TeamSwitchTimer int `json:"TeamSwitchTimer"`
}

func (SetTeamSwitchCooldown) CommandName() string { return "SetTeamSwitchCooldown" }

// SetMaxQueuedPlayers sets the length of the join queue.
type SetMaxQueuedPlayers struct {
	v2
	MaxQueuedPlayers int `json:"MaxQueuedPlayers"`
}

func (SetMaxQueuedPlayers) CommandName() string { return "SetMaxQueuedPlayers" }

// SetIdleKickDuration sets the minutes of inactivity after which a player is kicked.
type SetIdleKickDuration struct {
	v2
	IdleTimeoutMinutes int `json:"IdleTimeoutMinutes"`
}

func (SetIdleKickDuration) CommandName() string { return "SetIdleKickDuration" }

// SetHighPingThreshold sets the ping in milliseconds above which players are kicked. Zero
// disables the check.
type SetHighPingThreshold struct {
	v2
	HighPingThresholdMs int `json:"HighPingThresholdMs"`
}

func (SetHighPingThreshold) CommandName() string { return "SetHighPingThreshold" }

// SetVipSlotCount sets the number of slots reserved for VIPs.
type SetVipSlotCount struct {
	v2
	VipSlotCount int `json:"VipSlotCount"`
}

func (SetVipSlotCount) CommandName() string { return "SetVipSlotCount" }

// SetAutoBalanceEnabled turns team auto balance on or off.
type SetAutoBalanceEnabled struct {
	v2
	Enable bool `json:"Enable"`
}

func (SetAutoBalanceEnabled) CommandName() string { return "SetAutoBalanceEnabled" }

// SetAutoBalanceThreshold sets the player difference between teams that auto balance tolerates.
type SetAutoBalanceThreshold struct {
	v2
	AutoBalanceThreshold int `json:"AutoBalanceThreshold"`
}

func (SetAutoBalanceThreshold) CommandName() string { return "SetAutoBalanceThreshold" }

// SetVoteKickEnabled turns vote kicking on or off.
type SetVoteKickEnabled struct {
	v2
	Enable bool `json:"Enable"`
}

func (SetVoteKickEnabled) CommandName() string { return "SetVoteKickEnabled" }

// VoteKickThreshold is the number of votes needed to kick a player once at least Players are on
// the server.
type VoteKickThreshold struct {
	Players int
	Votes   int
}

// SetVoteKickThreshold replaces the vote kick thresholds.
type SetVoteKickThreshold struct {
	v2
	Thresholds []VoteKickThreshold
}

func (SetVoteKickThreshold) CommandName() string { return "SetVoteKickThreshold" }

// The server expects a flat "players,votes,players,votes" list.
func (s SetVoteKickThreshold) commandBody() any {
	values := make([]string, 0, 2*len(s.Thresholds))
	for _, t := range s.Thresholds {
		values = append(values, strconv.Itoa(t.Players), strconv.Itoa(t.Votes))
	}
	return map[string]string{"ThresholdValue": strings.Join(values, ",")}
}

// ResetVoteKickThreshold restores the default vote kick thresholds.
type ResetVoteKickThreshold struct {
	v2
}

func (ResetVoteKickThreshold) CommandName() string { return "ResetVoteKickThreshold" }
func (ResetVoteKickThreshold) commandBody() any    { return "" }

// AddBannedWords adds words to the chat filter.
type AddBannedWords struct {
	v2
	Words []string
}

func (AddBannedWords) CommandName() string { return "AddBannedWords" }
func (a AddBannedWords) commandBody() any {
	return map[string]string{"Words": strings.Join(a.Words, ",")}
}

// RemoveBannedWords removes words from the chat filter.
type RemoveBannedWords struct {
	v2
	Words []string
}

func (RemoveBannedWords) CommandName() string { return "RemoveBannedWords" }
func (r RemoveBannedWords) commandBody() any {
	return map[string]string{"Words": strings.Join(r.Words, ",")}
}

// GameMode names a game mode for the match and warmup timer commands.
type GameMode string

const (
	GameModeWarfare   GameMode = "Warfare"
	GameModeOffensive GameMode = "Offensive"
	GameModeSkirmish  GameMode = "Skirmish"
)

// SetMatchTimer sets the match length of a game mode in minutes.
type SetMatchTimer struct {
	v2
	GameMode    GameMode `json:"GameMode"`
	MatchLength int      `json:"MatchLength"`
}

func (SetMatchTimer) CommandName() string { return "SetMatchTimer" }

// RemoveMatchTimer restores the default match length of a game mode.
type RemoveMatchTimer struct {
	v2
	GameMode GameMode `json:"GameMode"`
}

func (RemoveMatchTimer) CommandName() string { return "RemoveMatchTimer" }

// SetWarmupTimer sets the warmup length of a game mode in minutes.
type SetWarmupTimer struct {
	v2
	GameMode     GameMode `json:"GameMode"`
	WarmupLength int      `json:"WarmupLength"`
}

func (SetWarmupTimer) CommandName() string { return "SetWarmupTimer" }

// RemoveWarmupTimer restores the default warmup length of a game mode.
type RemoveWarmupTimer struct {
	v2
	GameMode GameMode `json:"GameMode"`
}

func (RemoveWarmupTimer) CommandName() string { return "RemoveWarmupTimer" }

// SetDynamicWeatherEnabled turns dynamic weather on or off for future matches on a map.
type SetDynamicWeatherEnabled struct {
	v2
	MapID  string `json:"MapId"`
	Enable bool   `json:"Enable"`
}

func (SetDynamicWeatherEnabled) CommandName() string { return "SetDynamicWeatherEnabled" }

// AddMapToRotation inserts mapName into the rotation at index.
func (c *Client) AddMapToRotation(ctx context.Context, mapName string, index int) error {
	_, err := c.Run(ctx, AddMapToRotation{MapName: mapName, Index: index})
	return err
}

// RemoveMapFromRotation removes the map at index from the rotation.
func (c *Client) RemoveMapFromRotation(ctx context.Context, index int) error {
	_, err := c.Run(ctx, RemoveMapFromRotation{Index: index})
	return err
}

// AddMapToSequence inserts mapName into the sequence at index.
func (c *Client) AddMapToSequence(ctx context.Context, mapName string, index int) error {
	_, err := c.Run(ctx, AddMapToSequence{MapName: mapName, Index: index})
	return err
}

// RemoveMapFromSequence removes the map at index from the sequence.
func (c *Client) RemoveMapFromSequence(ctx context.Context, index int) error {
	_, err := c.Run(ctx, RemoveMapFromSequence{Index: index})
	return err
}

// MoveMapInSequence moves the map at from to position to of the sequence.
func (c *Client) MoveMapInSequence(ctx context.Context, from, to int) error {
	_, err := c.Run(ctx, MoveMapInSequence{CurrentIndex: from, NewIndex: to})
	return err
}

// SetMapShuffleEnabled turns shuffling of the map sequence on or off.
func (c *Client) SetMapShuffleEnabled(ctx context.Context, enabled bool) error {
	_, err := c.Run(ctx, SetMapShuffleEnabled{Enable: enabled})
	return err
}

// DisbandSquad disbands a squad. It returns false when there is no such squad.
func (c *Client) DisbandSquad(ctx context.Context, teamIndex, squadIndex int, reason string) (bool, error) {
	_, err := c.Run(ctx, DisbandPlatoon{TeamIndex: teamIndex, SquadIndex: squadIndex, Reason: reason})
	return statusResult(err, StatusBadRequest)
}

// RemovePlayerFromSquad removes a player from their squad. It returns false when the player is
// not in a squad.
func (c *Client) RemovePlayerFromSquad(ctx context.Context, playerID, reason string) (bool, error) {
	_, err := c.Run(ctx, RemovePlayerFromPlatoon{PlayerID: playerID, Reason: reason})
	return statusResult(err, StatusBadRequest)
}

// ForceTeamSwitch moves a player to the other team. It returns false when the switch could not
// be made.
func (c *Client) ForceTeamSwitch(ctx context.Context, playerID string, mode ForceMode) (bool, error) {
	_, err := c.Run(ctx, ForceTeamSwitch{PlayerID: playerID, ForceMode: mode})
	return statusResult(err, StatusInternalError)
}

// SetVoteKickThresholds replaces the vote kick thresholds.
func (c *Client) SetVoteKickThresholds(ctx context.Context, thresholds ...VoteKickThreshold) error {
	_, err := c.Run(ctx, SetVoteKickThreshold{Thresholds: thresholds})
	return err
}

// AddBannedWords adds words to the chat filter.
func (c *Client) AddBannedWords(ctx context.Context, words ...string) error {
	_, err := c.Run(ctx, AddBannedWords{Words: words})
	return err
}

// RemoveBannedWords removes words from the chat filter.
func (c *Client) RemoveBannedWords(ctx context.Context, words ...string) error {
	_, err := c.Run(ctx, RemoveBannedWords{Words: words})
	return err
}

// SetMatchTimer sets the match length of mode in minutes.
func (c *Client) SetMatchTimer(ctx context.Context, mode GameMode, minutes int) error {
	_, err := c.Run(ctx, SetMatchTimer{GameMode: mode, MatchLength: minutes})
	return err
}

// SetWarmupTimer sets the warmup length of mode in minutes.
func (c *Client) SetWarmupTimer(ctx context.Context, mode GameMode, minutes int) error {
	_, err := c.Run(ctx, SetWarmupTimer{GameMode: mode, WarmupLength: minutes})
	return err
}
