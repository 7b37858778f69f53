package sync

// State is where the auto-sync machine is.
type State int

const (
	// Idle: nothing running, nothing queued.
	Idle State = iota
	// Syncing: a push is in flight.
	Syncing
	// Pending: a push is in flight and at least one more was requested.
	Pending
	// Scheduled: the follow-up push is waiting for its delay to pass.
	Scheduled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Pending:
		return "pending"
	case Scheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// Event drives the machine.
type Event int

const (
	// Request: someone asked for an auto-sync.
	Request Event = iota
	// Done: the in-flight push finished, successfully or not.
	Done
	// TimerFired: the follow-up delay elapsed.
	TimerFired
)

func (e Event) String() string {
	switch e {
	case Request:
		return "request"
	case Done:
		return "done"
	case TimerFired:
		return "timer"
	default:
		return "unknown"
	}
}

// Action is the side effect the engine must perform after a transition.
type Action int

const (
	NoAction Action = iota
	// Start: run a push now.
	Start
	// Arm: schedule the follow-up push after the rerun delay.
	Arm
	// CancelAndStart: stop the scheduled timer and run a push now.
	CancelAndStart
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "none"
	case Start:
		return "start"
	case Arm:
		return "arm"
	case CancelAndStart:
		return "cancel+start"
	default:
		return "unknown"
	}
}

// Transition returns the next state and the action to take. It has no side
// effects; unlisted pairs leave the state unchanged.
func Transition(s State, e Event) (State, Action) {
	switch e {
	case Request:
		switch s {
		case Idle:
			return Syncing, Start
		case Syncing, Pending:
			return Pending, NoAction
		case Scheduled:
			return Syncing, CancelAndStart
		}
	case Done:
		switch s {
		case Syncing:
			return Idle, NoAction
		case Pending:
			return Scheduled, Arm
		}
	case TimerFired:
		if s == Scheduled {
			return Syncing, Start
		}
	}
	return s, NoAction
}
