package world

import (
	"fmt"

	"github.com/dumfing/skirmish/internal/entity"
	"github.com/dumfing/skirmish/pkg/core"
)

// Action is the single thing a soldier does with its input in one tick.
type Action int

const (
	ActionIdle Action = iota
	ActionJump
	ActionMoveLeft
	ActionMoveRight
	ActionShoot
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionJump:
		return "jump"
	case ActionMoveLeft:
		return "moveLeft"
	case ActionMoveRight:
		return "moveRight"
	case ActionShoot:
		return "shoot"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Policy is the order in which the horizontal actions are tried. Only the
// first one whose key is pressed runs; the rest are ignored for that tick.
type Policy []Action

// DefaultPolicy checks A, then D, then the left mouse button.
var DefaultPolicy = Policy{ActionMoveLeft, ActionMoveRight, ActionShoot}

var actionKeys = map[Action]core.Key{
	ActionMoveLeft:  core.KeyA,
	ActionMoveRight: core.KeyD,
	ActionShoot:     core.KeyLMB,
}

// Decision is resolved input for one soldier and one tick.
type Decision struct {
	// Action is the horizontal action taken, or ActionJump when the only
	// thing that happened was a jump, or ActionIdle.
	Action Action
	// Jumped is set whenever the jump impulse applies, even alongside a
	// horizontal action.
	Jumped bool
	// VX is the new horizontal velocity. Only meaningful for moves.
	VX float32
	// Facing after the decision.
	Facing core.Facing
	// Animation flags, without facing.
	Animation core.Animation
}

// Composite returns animation flags plus facing.
func (d Decision) Composite() core.Animation {
	return core.Compose(d.Animation, d.Facing)
}

// ResolveInput turns a soldier's stored snapshot into a Decision. It does
// not touch the soldier.
func ResolveInput(s *entity.Soldier, phys Physics, policy Policy) Decision {
	keys := s.Controls()
	d := Decision{Action: ActionIdle, Facing: s.Facing}

	grounded := s.CanJump
	vy := s.VY
	if keys.Pressed(core.KeyW) && grounded {
		d.Jumped = true
		d.Action = ActionJump
		grounded = false
		vy = phys.JumpPower
	}

	if !grounded {
		switch {
		case vy < 0:
			d.Animation += core.AnimFall
		case vy > 0:
			d.Animation += core.AnimJump
		}
	}

	for _, action := range policy {
		key, ok := actionKeys[action]
		if !ok || !keys.Pressed(key) {
			continue
		}
		d.Action = action
		switch action {
		case ActionMoveLeft, ActionMoveRight:
			speed := phys.WalkSpeed
			if grounded {
				d.Animation += core.AnimWalk
			} else {
				speed /= 2
			}
			if action == ActionMoveLeft {
				d.VX = -speed
				d.Facing = core.FacingLeft
			} else {
				d.VX = speed
				d.Facing = core.FacingRight
			}
		}
		break
	}

	return d
}
