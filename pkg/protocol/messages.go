// Package protocol defines the messages exchanged between game clients and
// the server. The set is closed: every message type lives in this file and
// is listed in Catalog.
package protocol

import (
	"fmt"

	"github.com/dumfing/skirmish/pkg/core"
)

// Default ports.
const (
	UDPPort = 19815
	TCPPort = 19816
)

// Kind is the wire tag of a message.
type Kind string

const (
	KindInfoRequest         Kind = "info_request"
	KindConnectionRequest   Kind = "connection_request"
	KindPickedTeam          Kind = "picked_team"
	KindClientChat          Kind = "client_chat"
	KindInput               Kind = "input"
	KindResponse            Kind = "response"
	KindSummary             Kind = "summary"
	KindDetailedSummary     Kind = "detailed_summary"
	KindGameCountdown       Kind = "game_countdown"
	KindServerChat          Kind = "server_chat"
	KindPlayerPositions     Kind = "player_positions"
	KindProjectilePositions Kind = "projectile_positions"
	KindFlagPositions       Kind = "flag_positions"
)

// Message is implemented only by the types in this package.
type Message interface {
	Kind() Kind
	isMessage()
}

// InfoRequest asks a server for its Summary.
type InfoRequest struct{}

// ConnectionRequest asks to join as a player. Catalog is the sender's
// CatalogHash; zero skips the check.
type ConnectionRequest struct {
	PlayerName string `json:"playerName" msgpack:"playerName"`
	Catalog    uint64 `json:"catalog,omitempty" msgpack:"catalog,omitempty"`
}

// PickedTeam confirms a team selection (0 red, 1 blue).
type PickedTeam struct {
	Picked core.Team `json:"picked" msgpack:"picked"`
}

// ClientChat is a chat line typed by a player.
type ClientChat struct {
	Message string `json:"message" msgpack:"message"`
}

// Input carries the full control snapshot of a player.
type Input struct {
	Controls core.Controls `json:"controls" msgpack:"controls"`
}

// ResponseCode is the outcome of a ConnectionRequest.
type ResponseCode int

const (
	CodeConnected  ResponseCode = 0
	CodeServerFull ResponseCode = 1
)

func (c ResponseCode) String() string {
	switch c {
	case CodeConnected:
		return "CONNECTED"
	case CodeServerFull:
		return "SERVER_FULL"
	default:
		return fmt.Sprintf("ResponseCode(%d)", int(c))
	}
}

// Response answers a ConnectionRequest.
type Response struct {
	Code ResponseCode `json:"code" msgpack:"code"`
}

// Summary is the short server description used by discovery.
type Summary struct {
	Num        int    `json:"num" msgpack:"num"`
	Max        int    `json:"max" msgpack:"max"`
	Ping       int    `json:"ping" msgpack:"ping"`
	ServerName string `json:"serverName" msgpack:"serverName"`
}

func (s Summary) String() string {
	name := s.ServerName
	if len(name) > 20 {
		name = name[:20]
	}
	return fmt.Sprintf("%20s %d/%d %d", name, s.Num, s.Max, s.Ping)
}

// DetailedSummary reports team counts and limits.
type DetailedSummary struct {
	RedTeam  int `json:"rTeam" msgpack:"rTeam"`
	BlueTeam int `json:"bTeam" msgpack:"bTeam"`
	RedMax   int `json:"rMax" msgpack:"rMax"`
	BlueMax  int `json:"bMax" msgpack:"bMax"`
}

// NewDetailedSummary splits maxPlayers between the teams. Blue gets the
// floor of half, red gets the rest.
func NewDetailedSummary(red, blue, maxPlayers int) DetailedSummary {
	blueMax := maxPlayers / 2
	return DetailedSummary{
		RedTeam:  red,
		BlueTeam: blue,
		RedMax:   maxPlayers - blueMax,
		BlueMax:  blueMax,
	}
}

// Limit returns the player limit of team.
func (d DetailedSummary) Limit(team core.Team) int {
	if team == core.TeamBlue {
		return d.BlueMax
	}
	return d.RedMax
}

// GameCountdown is sent once per second before a round starts.
type GameCountdown struct {
	Seconds int `json:"seconds" msgpack:"seconds"`
}

// ServerChat is a chat line relayed to every client.
type ServerChat struct {
	Message string `json:"message" msgpack:"message"`
}

// FormatChat builds the relayed chat line.
func FormatChat(name, message string) string {
	return fmt.Sprintf("%s: %s", name, message)
}

// PlayerInfo is one soldier in a PlayerPositions snapshot.
type PlayerInfo struct {
	ID     int       `json:"id" msgpack:"id"`
	Rect   core.Rect `json:"rect" msgpack:"rect"`
	Team   core.Team `json:"team" msgpack:"team"`
	Name   string    `json:"name" msgpack:"name"`
	Health int       `json:"health" msgpack:"health"`
}

// PlayerPositions is the full soldier snapshot.
type PlayerPositions struct {
	Tick    uint         `json:"tick" msgpack:"tick"`
	Players []PlayerInfo `json:"players" msgpack:"players"`
}

// ProjectileInfo is one projectile in a ProjectilePositions snapshot.
type ProjectileInfo struct {
	X     float32   `json:"x" msgpack:"x"`
	Y     float32   `json:"y" msgpack:"y"`
	Angle float32   `json:"angle" msgpack:"angle"`
	Team  core.Team `json:"team" msgpack:"team"`
}

// ProjectilePositions is the full projectile snapshot.
type ProjectilePositions struct {
	Tick        uint             `json:"tick" msgpack:"tick"`
	Projectiles []ProjectileInfo `json:"projectiles" msgpack:"projectiles"`
}

// FlagInfo is one flag in a FlagPositions snapshot.
type FlagInfo struct {
	X    float32   `json:"x" msgpack:"x"`
	Y    float32   `json:"y" msgpack:"y"`
	Team core.Team `json:"team" msgpack:"team"`
}

// FlagPositions is the full flag snapshot.
type FlagPositions struct {
	Tick  uint       `json:"tick" msgpack:"tick"`
	Flags []FlagInfo `json:"flags" msgpack:"flags"`
}

func (InfoRequest) Kind() Kind         { return KindInfoRequest }
func (ConnectionRequest) Kind() Kind   { return KindConnectionRequest }
func (PickedTeam) Kind() Kind          { return KindPickedTeam }
func (ClientChat) Kind() Kind          { return KindClientChat }
func (Input) Kind() Kind               { return KindInput }
func (Response) Kind() Kind            { return KindResponse }
func (Summary) Kind() Kind             { return KindSummary }
func (DetailedSummary) Kind() Kind     { return KindDetailedSummary }
func (GameCountdown) Kind() Kind       { return KindGameCountdown }
func (ServerChat) Kind() Kind          { return KindServerChat }
func (PlayerPositions) Kind() Kind     { return KindPlayerPositions }
func (ProjectilePositions) Kind() Kind { return KindProjectilePositions }
func (FlagPositions) Kind() Kind       { return KindFlagPositions }

func (InfoRequest) isMessage()         {}
func (ConnectionRequest) isMessage()   {}
func (PickedTeam) isMessage()          {}
func (ClientChat) isMessage()          {}
func (Input) isMessage()               {}
func (Response) isMessage()            {}
func (Summary) isMessage()             {}
func (DetailedSummary) isMessage()     {}
func (GameCountdown) isMessage()       {}
func (ServerChat) isMessage()          {}
func (PlayerPositions) isMessage()     {}
func (ProjectilePositions) isMessage() {}
func (FlagPositions) isMessage()       {}
