// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

// Team identifies the faction a player is playing for.
type Team int

const (
	TeamGER Team = iota
	TeamUS
	TeamRUS
	TeamGB
	TeamDAK
	TeamB8A
	TeamUnassigned
)

// IsAllied reports whether t is an allied faction.
func (t Team) IsAllied() bool {
	return t == TeamUS || t == TeamRUS || t == TeamGB || t == TeamB8A
}

// IsAxis reports whether t is an axis faction.
func (t Team) IsAxis() bool {
	return t == TeamGER || t == TeamDAK
}

// ScoreData holds the four score categories of a player.
type ScoreData struct {
	Combat  int `json:"cOMBAT"`
	Offense int `json:"offense"`
	Defense int `json:"defense"`
	Support int `json:"support"`
}

// WorldPosition is a location on the map.
type WorldPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is a player on the server.
type Player struct {
	Name          string        `json:"name"`
	ClanTag       string        `json:"clanTag"`
	ID            string        `json:"iD"`
	Platform      string        `json:"platform"`
	EOSID         string        `json:"eosId"`
	Level         int           `json:"level"`
	Team          Team          `json:"team"`
	Role          int           `json:"role"`
	Platoon       string        `json:"platoon"`
	Loadout       string        `json:"loadout"`
	Kills         int           `json:"kills"`
	Deaths        int           `json:"deaths"`
	ScoreData     ScoreData     `json:"scoreData"`
	WorldPosition WorldPosition `json:"worldPosition"`
}

// PlayerList is the players section of server information.
type PlayerList struct {
	Players []Player `json:"players"`
}

// ServerSession is the state of the current match.
type ServerSession struct {
	ServerName         string `json:"serverName"`
	MapName            string `json:"mapName"`
	GameMode           string `json:"gameMode"`
	RemainingMatchTime int    `json:"remainingMatchTime"`
	MatchTime          int    `json:"matchTime"`
	AlliedScore        int    `json:"alliedScore"`
	AxisScore          int    `json:"axisScore"`
	PlayerCount        int    `json:"playerCount"`
	MaxPlayerCount     int    `json:"maxPlayerCount"`
	QueueCount         int    `json:"queueCount"`
	MaxQueueCount      int    `json:"maxQueueCount"`
	VipQueueCount      int    `json:"vipQueueCount"`
	MaxVipQueueCount   int    `json:"maxVipQueueCount"`
}

// ServerConfig is static server configuration.
type ServerConfig struct {
	ServerName         string   `json:"serverName"`
	BuildNumber        string   `json:"buildNumber"`
	BuildRevision      string   `json:"buildRevision"`
	SupportedPlatforms []string `json:"supportedPlatforms"`
	PasswordProtected  bool     `json:"passwordProtected"`
}

// MapEntry is a map in the rotation or sequence.
type MapEntry struct {
	Name      string `json:"name"`
	GameMode  string `json:"gameMode"`
	TimeOfDay string `json:"timeOfDay"`
	ID        string `json:"iD"`
	Position  int    `json:"position"`
}

// MapList is the maprotation and mapsequence sections of server information.
type MapList struct {
	Maps []MapEntry `json:"mAPS"`
}

// BannedWords is the bannedwords section of server information.
type BannedWords struct {
	BannedWords []string `json:"bannedWords"`
}

// AdminLogEntry is a single line of the admin log.
type AdminLogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// AdminLog is the response to [GetAdminLog].
type AdminLog struct {
	Entries []AdminLogEntry `json:"entries"`
}

// CommandInfo describes a command the server accepts.
type CommandInfo struct {
	ID                string `json:"iD"`
	FriendlyName      string `json:"friendlyName"`
	IsClientSupported bool   `json:"isClientSupported"`
}

// CommandList is the response to [GetDisplayableCommands].
type CommandList struct {
	Entries []CommandInfo `json:"entries"`
}
