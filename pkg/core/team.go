// pkg/core/team.go
package core

import "fmt"

// Team identifies one of the two sides of a round.
type Team int

const (
	TeamRed  Team = 0
	TeamBlue Team = 1
)

// Valid reports whether t is one of the two playable teams.
func (t Team) Valid() bool {
	return t == TeamRed || t == TeamBlue
}

func (t Team) String() string {
	switch t {
	case TeamRed:
		return "red"
	case TeamBlue:
		return "blue"
	default:
		return fmt.Sprintf("team(%d)", int(t))
	}
}

// Opponent returns the other team.
func (t Team) Opponent() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// Class is the combat class picked by a player.
type Class int

const (
	ClassUnassigned Class = -1
	ClassKnight     Class = 0
	ClassArcher     Class = 1
)

func (c Class) String() string {
	switch c {
	case ClassUnassigned:
		return "unassigned"
	case ClassKnight:
		return "knight"
	case ClassArcher:
		return "archer"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Ranged reports whether the class fires projectiles.
func (c Class) Ranged() bool {
	return c == ClassArcher
}

// ParseTeam is the inverse of Team.String.
func ParseTeam(s string) (Team, bool) {
	switch s {
	case "red":
		return TeamRed, true
	case "blue":
		return TeamBlue, true
	}
	return TeamRed, false
}

// ParseClass is the inverse of Class.String. Unknown names map to
// ClassUnassigned.
func ParseClass(s string) Class {
	switch s {
	case "knight":
		return ClassKnight
	case "archer":
		return ClassArcher
	}
	return ClassUnassigned
}
