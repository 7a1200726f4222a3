package optimistic

import "fmt"

// State is the like state of one post as the user sees it.
// LikeCount is never negative.
type State struct {
	Liked     bool
	LikeCount int
}

func (s State) String() string {
	return fmt.Sprintf("{liked:%t count:%d}", s.Liked, s.LikeCount)
}

func (s State) normalized() State {
	if s.LikeCount < 0 {
		s.LikeCount = 0
	}
	return s
}

// Predict returns the state a toggle is expected to produce. Unliking
// floors the count at zero, so inconsistent input such as
// {Liked: true, LikeCount: 0} predicts {false, 0}.
func Predict(s State) State {
	if s.Liked {
		return State{Liked: false, LikeCount: max(0, s.LikeCount-1)}
	}
	return State{Liked: true, LikeCount: s.LikeCount + 1}
}

// Snapshot is the state captured when a toggle starts. It is used only to
// roll back a failed toggle.
type Snapshot struct {
	state State
}

// State returns the captured state.
func (s Snapshot) State() State {
	return s.state
}

// Phase is the reconciler's position in a toggle.
type Phase int

const (
	// PhaseIdle means no toggle is in flight and the state is either the
	// initial value or a rolled-back snapshot.
	PhaseIdle Phase = iota
	// PhasePredicting means a prediction is shown and the request is in
	// flight.
	PhasePredicting
	// PhaseReconciled means the last toggle succeeded and the state is the
	// server's.
	PhaseReconciled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePredicting:
		return "predicting"
	case PhaseReconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}
