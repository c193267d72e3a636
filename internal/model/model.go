package model

import (
	"database/sql"
	"errors"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServerInfo{},
	&ServerPerformance{},
	&Level{},
	&Round{},
	&Player{},
	&SoldierState{},
	&ProjectileEvent{},
	&HitEvent{},
	&ChatEvent{},
	&TeamPick{},
	&TickStat{},
}

// DatabaseModelsSQLite is the subset migrated into the local SQLite file.
// Server metadata lives only in Postgres.
var DatabaseModelsSQLite = []interface{}{
	&ServerPerformance{},
	&Level{},
	&Round{},
	&Player{},
	&SoldierState{},
	&ProjectileEvent{},
	&HitEvent{},
	&ChatEvent{},
	&TeamPick{},
	&TickStat{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ServerInfo describes the community running the server
type ServerInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
	Website     string `json:"website" gorm:"size:255"`
}

func (*ServerInfo) TableName() string {
	return "server_infos"
}

// ServerPerformance is a periodic sample of the recorder itself
type ServerPerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_perf_time"`
	RoundID             uint              `json:"roundId" gorm:"index:idx_perf_round_id"`
	Round               Round             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RoundID;"`
	Clients             int               `json:"clients"`
	EventQueue          int               `json:"eventQueue"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*ServerPerformance) TableName() string {
	return "server_performances"
}

// WriteQueueLengths is the backlog of each write queue
type WriteQueueLengths struct {
	Players          int `json:"players"`
	SoldierStates    int `json:"soldierStates"`
	ProjectileEvents int `json:"projectileEvents"`
	HitEvents        int `json:"hitEvents"`
	ChatEvents       int `json:"chatEvents"`
	TeamPicks        int `json:"teamPicks"`
	TickStats        int `json:"tickStats"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Level is a map that rounds are played on. Levels are shared between
// rounds and identified by their checksum.
type Level struct {
	gorm.Model
	Name      string     `json:"name" gorm:"size:127"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Checksum  string     `json:"checksum" gorm:"size:16;uniqueIndex:idx_level_checksum"`
	RedSpawn  geom.Point `json:"redSpawn"`
	BlueSpawn geom.Point `json:"blueSpawn"`
	Rounds    []Round
}

func (*Level) TableName() string {
	return "levels"
}

// GetOrInsert loads the level with the same checksum or creates it.
func (l *Level) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing Level
	err = db.Where("checksum = ?", l.Checksum).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = db.Create(l).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*l = existing
	return false, nil
}

// Round is one recorded match
type Round struct {
	gorm.Model
	ServerName    string         `json:"serverName" gorm:"size:127"`
	ServerVersion string         `json:"serverVersion" gorm:"size:64"`
	StartTime     time.Time      `json:"startTime" gorm:"index:idx_round_start"`
	EndTime       sql.NullTime   `json:"endTime"`
	LevelID       uint           `json:"levelId"`
	Level         Level          `gorm:"foreignkey:LevelID"`
	TickRate      int            `json:"tickRate" gorm:"default:60"`
	MaxPlayers    int            `json:"maxPlayers"`
	Tag           string         `json:"tag" gorm:"size:127"`
	Settings      datatypes.JSON `json:"settings" gorm:"default:'{}'"`

	Players          []Player
	HitEvents        []HitEvent
	ProjectileEvents []ProjectileEvent
	ChatEvents       []ChatEvent
	TeamPicks        []TeamPick
}

func (*Round) TableName() string {
	return "rounds"
}

// Player is a connection that joined a round
// Uses composite primary key (RoundID, ConnID)
type Player struct {
	RoundID   uint      `json:"roundId" gorm:"primaryKey;autoIncrement:false"`
	ConnID    int       `json:"connId" gorm:"primaryKey;autoIncrement:false"`
	Round     Round     `gorm:"foreignkey:RoundID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time `json:"createdAt"`
	JoinTime  time.Time `json:"joinTime" gorm:"NOT NULL"`
	JoinTick  uint      `json:"joinTick"`
	Name      string    `json:"name" gorm:"size:64"`
	Team      string    `json:"team" gorm:"size:8"`
	Class     string    `json:"class" gorm:"size:16"`
}

func (*Player) TableName() string {
	return "players"
}

// SoldierState is a soldier sample taken on every broadcast
type SoldierState struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time"`
	RoundID   uint       `json:"roundId" gorm:"index:idx_soldierstate_round_id"`
	Round     Round      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RoundID;"`
	ConnID    int        `json:"connId" gorm:"index:idx_soldierstate_conn_id"`
	Tick      uint       `json:"tick" gorm:"index:idx_soldierstate_tick"`
	Position  geom.Point `json:"position"`
	VX        float32    `json:"vx"`
	VY        float32    `json:"vy"`
	Health    int        `json:"health"`
	Team      string     `json:"team" gorm:"size:8"`
	Animation int        `json:"animation"`
	Grounded  bool       `json:"grounded"`
}

func (*SoldierState) TableName() string {
	return "soldier_states"
}

// ProjectileEvent is one projectile flight, spawn to removal
type ProjectileEvent struct {
	ID           uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time     `json:"firedTime"`
	RoundID      uint          `json:"roundId" gorm:"index:idx_projectile_round_id"`
	Round        Round         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RoundID;"`
	ProjectileID uint          `json:"projectileId"` // id inside the world
	OwnerConnID  int           `json:"ownerConnId" gorm:"index:idx_projectile_owner"`
	Team         string        `json:"team" gorm:"size:8"`
	SpawnTick    uint          `json:"spawnTick"`
	EndTick      uint          `json:"endTick"`
	Angle        float32       `json:"angle"`
	Speed        float32       `json:"speed"`
	HitConnID    sql.NullInt32 `json:"hitConnId,omitempty"`
	HitMap       bool          `json:"hitMap"`

	Trajectory geom.Geometry `json:"-"` // LineString, one vertex per tick alive
}

func (p *ProjectileEvent) TableName() string {
	return "projectile_events"
}

// HitEvent is a projectile striking a soldier
type HitEvent struct {
	ID            uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time  `json:"time"`
	RoundID       uint       `json:"roundId" gorm:"index:idx_hit_round_id"`
	Round         Round      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RoundID;"`
	Tick          uint       `json:"tick"`
	ShooterConnID int        `json:"shooterConnId" gorm:"index:idx_hit_shooter"`
	VictimConnID  int        `json:"victimConnId" gorm:"index:idx_hit_victim"`
	Damage        int        `json:"damage"`
	HealthAfter   int        `json:"healthAfter"`
	Position      geom.Point `json:"position"`
}

func (h *HitEvent) TableName() string {
	return "hit_events"
}

// ChatEvent is a relayed chat line
type ChatEvent struct {
	ID      uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time    time.Time `json:"time"`
	RoundID uint      `json:"roundId" gorm:"index:idx_chat_round_id"`
	Round   Round     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RoundID;"`
	Tick    uint      `json:"tick"`
	ConnID  int       `json:"connId"`
	Name    string    `json:"name" gorm:"size:64"`
	Message string    `json:"message" gorm:"size:512"`
}

func (c *ChatEvent) TableName() string {
	return "chat_events"
}

// TeamPick is a player confirming a team
type TeamPick struct {
	ID      uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time    time.Time  `json:"time"`
	RoundID uint       `json:"roundId" gorm:"index:idx_teampick_round_id"`
	Round   Round      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RoundID;"`
	Tick    uint       `json:"tick"`
	ConnID  int        `json:"connId"`
	Team    string     `json:"team" gorm:"size:8"`
	Spawn   geom.Point `json:"spawn"`
}

func (t *TeamPick) TableName() string {
	return "team_picks"
}

// TickStat is server tick performance
type TickStat struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time `json:"time" gorm:"index:idx_tickstat_time"`
	RoundID     uint      `json:"roundId" gorm:"index:idx_tickstat_round_id"`
	Tick        uint      `json:"tick"`
	DurationMs  float32   `json:"durationMs"`
	Soldiers    int       `json:"soldiers"`
	Projectiles int       `json:"projectiles"`
	QueueDepth  int       `json:"queueDepth"`
	State       string    `json:"state" gorm:"size:16"`
}

func (t *TickStat) TableName() string {
	return "tick_stats"
}

////////////////////////
// RETRIEVAL
////////////////////////

// RoundTimeline is one tick of a round reassembled for replay clients
type RoundTimeline struct {
	RoundID uint           `json:"roundId"`
	Tick    uint           `json:"tick"`
	States  datatypes.JSON `json:"states"`
	Hits    datatypes.JSON `json:"hits"`
	Chat    datatypes.JSON `json:"chat"`
}

func (*RoundTimeline) TableName() string {
	return "round_timelines"
}
