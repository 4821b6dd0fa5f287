package approval

import (
	"errors"
	"fmt"
)

// State is where an admin login attempt stands in the approval protocol.
type State int

const (
	// StateDirect: no other admin present, token issued straight away.
	StateDirect State = iota
	// StateAwaitingApproval: parked under an approval id, prompt sent to a present admin.
	StateAwaitingApproval
	StateApproved
	StateRejected
	// StateExpired: nobody decided within the approval window; the requester gets no callback.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateDirect:
		return "direct"
	case StateAwaitingApproval:
		return "pending_approval"
	case StateApproved:
		return "approved"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Final reports whether no further transition can leave s.
func (s State) Final() bool { return s != StateAwaitingApproval }

type event int

const (
	eventApprove event = iota
	eventReject
	eventTimeout
)

var errFinalState = errors.New("approval already resolved")

// next is the transition function of the protocol. Only an awaiting approval moves,
// and it moves exactly once.
func next(from State, ev event) (State, error) {
	if from.Final() {
		return from, fmt.Errorf("%s: %w", from, errFinalState)
	}
	switch ev {
	case eventApprove:
		return StateApproved, nil
	case eventReject:
		return StateRejected, nil
	case eventTimeout:
		return StateExpired, nil
	}
	return from, fmt.Errorf("unknown event %d", ev)
}
