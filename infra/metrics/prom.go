package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/flexplan/core/metrics"
)

// PromSink records planning and control events in Prometheus metrics.
type PromSink struct {
	planSlots *prometheus.GaugeVec
	planCost  *prometheus.GaugeVec
	actions   *prometheus.CounterVec
	checks    *prometheus.CounterVec
	peak      prometheus.Gauge
	available prometheus.Gauge
	limits    *prometheus.GaugeVec
	solver    *prometheus.HistogramVec
	revisions *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PromSink{}
	if s.planSlots, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flexplan_plan_slots",
		Help: "Number of slots planned per device and kind",
	}, []string{"device", "kind", "status"})); err != nil {
		return nil, err
	}
	if s.planCost, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flexplan_plan_cost",
		Help: "Summed slot prices of the planned runs",
	}, []string{"device"})); err != nil {
		return nil, err
	}
	if s.actions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flexplan_actions_total",
		Help: "Device actions executed",
	}, []string{"device", "kind", "transition", "success"})); err != nil {
		return nil, err
	}
	if s.checks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flexplan_verification_checks_total",
		Help: "State checks performed after actions",
	}, []string{"device", "matched"})); err != nil {
		return nil, err
	}
	if s.peak, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flexplan_peak_kw",
		Help: "Average power of the running slot",
	})); err != nil {
		return nil, err
	}
	if s.available, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flexplan_available_watts",
		Help: "Power left below the peak ceiling",
	})); err != nil {
		return nil, err
	}
	if s.limits, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flexplan_device_limit_watts",
		Help: "Power limit applied to a load managed device",
	}, []string{"device"})); err != nil {
		return nil, err
	}
	if s.solver, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flexplan_solver_duration_seconds",
		Help:    "Time spent in the thermal solver",
		Buckets: prometheus.DefBuckets,
	}, []string{"solver", "status"})); err != nil {
		return nil, err
	}
	if s.revisions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flexplan_plan_revisions_total",
		Help: "Plans saved",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPlan sets the planned slot count and cost of a device.
func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.planSlots.WithLabelValues(ev.Device, string(ev.Kind), ev.Status.String()).Set(float64(ev.Slots))
	if ev.Cost != 0 {
		s.planCost.WithLabelValues(ev.Device).Set(ev.Cost)
	}
	return nil
}

// RecordAction counts executed actions.
func (s *PromSink) RecordAction(ev coremetrics.ActionEvent) error {
	s.actions.WithLabelValues(ev.Device, string(ev.Kind), string(ev.Transition), strconv.FormatBool(ev.Success)).Inc()
	return nil
}

// RecordVerification counts state checks.
func (s *PromSink) RecordVerification(ev coremetrics.VerificationEvent) error {
	s.checks.WithLabelValues(ev.Device, strconv.FormatBool(ev.Matched)).Inc()
	return nil
}

// RecordLoad exposes the peak and the applied limits.
func (s *PromSink) RecordLoad(ev coremetrics.LoadEvent) error {
	s.peak.Set(ev.PeakKW)
	s.available.Set(ev.AvailableW)
	for device, w := range ev.Limits {
		s.limits.WithLabelValues(device).Set(w)
	}
	return nil
}

// RecordSolver observes the solver duration.
func (s *PromSink) RecordSolver(ev coremetrics.SolverEvent) error {
	s.solver.WithLabelValues(ev.Solver, ev.Status.String()).Observe(ev.Duration.Seconds())
	return nil
}

// RecordRevision counts saved plans.
func (s *PromSink) RecordRevision(ev coremetrics.RevisionEvent) error {
	s.revisions.WithLabelValues(ev.Reason).Inc()
	return nil
}
