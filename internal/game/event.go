package game

import (
	"fmt"
	"time"

	"github.com/dumfing/skirmish/pkg/core"
)

// EventKind tags an out-of-band event handed to the tick loop.
type EventKind int

const (
	EventJoin EventKind = iota
	EventLeave
	EventTeamPick
	EventClassPick
	EventChat
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventTeamPick:
		return "team_pick"
	case EventClassPick:
		return "class_pick"
	case EventChat:
		return "chat"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a discrete change produced on a network goroutine and applied by
// the tick loop. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	ConnID   int
	Name     string
	Team     core.Team
	Class    core.Class
	Message  string
	Received time.Time

	attempts int
}

// Join adds a soldier for a newly connected player.
func Join(connID int, name string) Event {
	return Event{Kind: EventJoin, ConnID: connID, Name: name, Received: time.Now()}
}

// Leave removes the soldier of a disconnected player.
func Leave(connID int) Event {
	return Event{Kind: EventLeave, ConnID: connID, Received: time.Now()}
}

// TeamPick assigns a team and teleports the soldier to its spawn.
func TeamPick(connID int, team core.Team) Event {
	return Event{Kind: EventTeamPick, ConnID: connID, Team: team, Received: time.Now()}
}

// ClassPick sets a soldier's combat class.
func ClassPick(connID int, class core.Class) Event {
	return Event{Kind: EventClassPick, ConnID: connID, Class: class, Received: time.Now()}
}

// Chat records a relayed chat line.
func Chat(connID int, name, message string) Event {
	return Event{Kind: EventChat, ConnID: connID, Name: name, Message: message, Received: time.Now()}
}
