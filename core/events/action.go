package events

import "github.com/kilianp07/flexplan/core/model"

// ActionEvent is published for each executed device action.
type ActionEvent struct {
	Device     string
	Kind       model.ActionKind
	Transition model.Transition
	Err        error
}

// VerificationEvent reports the outcome of one state check.
type VerificationEvent struct {
	Device    string
	Check     int
	Matched   bool
	Corrected bool
	Err       error
}

// LimitEvent is published after a load watcher pass changed limits.
type LimitEvent struct {
	PeakKW     float64
	AvailableW float64
	Limits     map[string]float64
}
