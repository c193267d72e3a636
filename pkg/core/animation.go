// pkg/core/animation.go
package core

// Animation is a bit set describing what a soldier is doing. The low bit
// carries facing, so a composite id is flags plus facing.
type Animation int

const (
	AnimLeft   Animation = 0
	AnimRight  Animation = 1
	AnimWalk   Animation = 2
	AnimFall   Animation = 4
	AnimJump   Animation = 8
	AnimAttack Animation = 16
	AnimIdle   Animation = 32
)

// Facing is the horizontal direction a soldier looks in.
type Facing int

const (
	FacingLeft  Facing = 0
	FacingRight Facing = 1
)

// Compose merges animation flags with a facing direction.
func Compose(flags Animation, facing Facing) Animation {
	return flags + Animation(facing)
}

// Has reports whether flag is set in a.
func (a Animation) Has(flag Animation) bool {
	return a&flag == flag
}
