package lpi2c

import "fmt"

// State is the protocol state of one bus as tracked by the driver.
type State uint8

const (
	StateIdle State = iota
	StateInitialized
	StateStart
	StateTransferring
	StateStop
	StateError
)

var stateNames = map[State]string{
	StateIdle:         "Idle",
	StateInitialized:  "Initialized",
	StateStart:        "Start",
	StateTransferring: "Transferring",
	StateStop:         "Stop",
	StateError:        "Error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

// transitions lists the states reachable from each state. Init is accepted
// from anywhere and is not listed.
var transitions = map[State][]State{
	StateIdle:         {StateStart, StateStop},
	StateInitialized:  {StateStart, StateStop},
	StateStart:        {StateTransferring, StateStart, StateStop, StateError},
	StateTransferring: {StateTransferring, StateStart, StateStop, StateError},
	StateStop:         {StateIdle, StateError},
	StateError:        {StateStart, StateStop, StateError},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to State) bool {
	if to == StateInitialized {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
