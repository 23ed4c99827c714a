package model

// Status classifies the result of a planning step.
type Status int

const (
	StatusOK Status = iota
	// StatusInfeasible means constraints could not be met; the value holds
	// the best degraded result.
	StatusInfeasible
	// StatusDataUnavailable means an input was missing; callers keep the
	// previous result.
	StatusDataUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInfeasible:
		return "infeasible"
	case StatusDataUnavailable:
		return "data_unavailable"
	default:
		return "unknown"
	}
}

// Outcome carries a planning result together with its status.
type Outcome[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Ok wraps a successful result.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Status: StatusOK, Value: v}
}

// Infeasible wraps a degraded result produced when constraints conflict.
func Infeasible[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Status: StatusInfeasible, Value: v, Err: err}
}

// DataUnavailable reports that no result could be computed.
func DataUnavailable[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusDataUnavailable, Err: err}
}

// OK reports whether the outcome is StatusOK.
func (o Outcome[T]) OK() bool { return o.Status == StatusOK }
