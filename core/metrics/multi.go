package metrics

// MultiSink fans out events to multiple sinks. Optional recorders are only
// forwarded to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPlan forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordPlan(ev PlanEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPlan(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordAction(ev ActionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ActionRecorder); ok {
			if err := rec.RecordAction(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordVerification(ev VerificationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(VerificationRecorder); ok {
			if err := rec.RecordVerification(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordLoad(ev LoadEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(LoadRecorder); ok {
			if err := rec.RecordLoad(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordSolver(ev SolverEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SolverRecorder); ok {
			if err := rec.RecordSolver(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordRevision(ev RevisionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RevisionRecorder); ok {
			if err := rec.RecordRevision(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
