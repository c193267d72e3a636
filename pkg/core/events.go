// pkg/core/events.go
package core

import "time"

// SoldierState is a periodic sample of one soldier.
type SoldierState struct {
	ConnID    int
	Time      time.Time
	Tick      uint
	X         float32
	Y         float32
	VX        float32
	VY        float32
	Health    int
	Team      Team
	Animation Animation
	Grounded  bool
}

// ProjectileEvent is a projectile from spawn to removal. Trajectory holds
// one point per tick alive, spawn first.
type ProjectileEvent struct {
	ID         uint
	OwnerID    int
	Team       Team
	Time       time.Time
	SpawnTick  uint
	EndTick    uint
	Angle      float32
	Speed      float32
	Trajectory [][2]float32
	HitConnID  *int
	HitMap     bool
}

// HitEvent is a projectile striking a soldier.
type HitEvent struct {
	Time          time.Time
	Tick          uint
	ShooterConnID int
	VictimConnID  int
	Damage        int
	HealthAfter   int
	X             float32
	Y             float32
}

// ChatEvent is a relayed chat line.
type ChatEvent struct {
	Time    time.Time
	Tick    uint
	ConnID  int
	Name    string
	Message string
}

// TeamPickEvent is a player confirming a team.
type TeamPickEvent struct {
	Time   time.Time
	Tick   uint
	ConnID int
	Team   Team
	SpawnX int
	SpawnY int
}

// TickStats is server performance for one tick.
type TickStats struct {
	Time        time.Time
	Tick        uint
	Duration    time.Duration
	Soldiers    int
	Projectiles int
	QueueDepth  int
	State       string
}
