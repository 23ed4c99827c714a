package metrics

import (
	"time"

	"github.com/kilianp07/flexplan/core/model"
)

// PlanEvent describes the result of one planning step for a device.
type PlanEvent struct {
	Device   string
	Kind     model.ActionKind
	Status   model.Status
	Slots    int
	Cost     float64
	Duration time.Duration
	Time     time.Time
}

// MetricsSink records planning results for observability purposes.
type MetricsSink interface {
	RecordPlan(ev PlanEvent) error
}

// ActionEvent records a command sent to a device.
type ActionEvent struct {
	Device     string
	Kind       model.ActionKind
	Transition model.Transition
	Success    bool
	Error      string
	Time       time.Time
}

// ActionRecorder records executed actions.
type ActionRecorder interface {
	RecordAction(ev ActionEvent) error
}

// VerificationEvent is the result of one state check.
type VerificationEvent struct {
	Device    string
	Check     int
	Matched   bool
	Corrected bool
	Time      time.Time
}

// VerificationRecorder records verification checks.
type VerificationRecorder interface {
	RecordVerification(ev VerificationEvent) error
}

// LoadEvent captures one load watcher pass.
type LoadEvent struct {
	PeakKW     float64
	AvailableW float64
	Limits     map[string]float64
	Time       time.Time
}

// LoadRecorder records peak power and allocated limits.
type LoadRecorder interface {
	RecordLoad(ev LoadEvent) error
}

// SolverEvent records which thermal solver produced a result.
type SolverEvent struct {
	Solver   string
	Status   model.Status
	Duration time.Duration
}

// RevisionEvent is emitted when a new plan document is saved.
type RevisionEvent struct {
	Revision string
	Reason   string
	Entries  int
	Time     time.Time
}

// RevisionRecorder records saved plans.
type RevisionRecorder interface {
	RecordRevision(ev RevisionEvent) error
}

// SolverRecorder records solver usage.
type SolverRecorder interface {
	RecordSolver(ev SolverEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPlan(PlanEvent) error                 { return nil }
func (NopSink) RecordAction(ActionEvent) error             { return nil }
func (NopSink) RecordVerification(VerificationEvent) error { return nil }
func (NopSink) RecordLoad(LoadEvent) error                 { return nil }
func (NopSink) RecordSolver(SolverEvent) error             { return nil }
func (NopSink) RecordRevision(RevisionEvent) error         { return nil }
