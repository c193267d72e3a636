package world

// Physics holds the tick-relative tuning of a world. Speeds are in world
// units per tick.
type Physics struct {
	WalkSpeed        float32
	JumpPower        float32
	ProjectileSpeed  float32
	ProjectileCap    int
	MaxLifetime      int
	ProjectileDamage int
}

// DefaultPhysics returns the stock tuning.
func DefaultPhysics() Physics {
	return Physics{
		WalkSpeed:        2,
		JumpPower:        1,
		ProjectileSpeed:  2,
		ProjectileCap:    20,
		MaxLifetime:      60,
		ProjectileDamage: 25,
	}
}
