package game

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a state change is not allowed.
var ErrIllegalTransition = errors.New("illegal state transition")

// State is the coarse phase of a round.
type State int

const (
	StateLoading State = iota
	StateLobby
	StateCountdown
	StatePlaying
	StateRoundOver
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateLobby:
		return "LOBBY"
	case StateCountdown:
		return "COUNTDOWN"
	case StatePlaying:
		return "PLAYING"
	case StateRoundOver:
		return "ROUND_OVER"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateLoading:   {StateLobby},
	StateLobby:     {StateCountdown, StateLoading},
	StateCountdown: {StatePlaying, StateLobby},
	StatePlaying:   {StateRoundOver},
	StateRoundOver: {StateLobby, StateLoading},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
