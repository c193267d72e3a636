// pkg/core/round.go
package core

import "time"

// Level describes the map a round is played on.
type Level struct {
	ID        uint
	Name      string
	Width     int
	Height    int
	Checksum  uint64
	RedSpawn  GridPoint
	BlueSpawn GridPoint
}

// Round represents one recorded match.
type Round struct {
	ID            uint
	ServerName    string
	LevelName     string
	StartTime     time.Time
	TickRate      int
	MaxPlayers    int
	ServerVersion string
	Tag           string
}

// Player is a connection that joined a round.
type Player struct {
	ID       uint // storage id, assigned by the backend
	ConnID   int
	Name     string
	Team     Team
	Class    Class
	JoinTick uint
	JoinTime time.Time
}

// UploadMetadata contains round metadata needed for upload.
type UploadMetadata struct {
	LevelName     string
	ServerName    string
	RoundDuration float64
	Tag           string
}
