package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/flexplan/app/plugins"
	"github.com/kilianp07/flexplan/config"
	"github.com/kilianp07/flexplan/core/actions"
	"github.com/kilianp07/flexplan/core/continuity"
	"github.com/kilianp07/flexplan/core/events"
	"github.com/kilianp07/flexplan/core/loadwatch"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	coremon "github.com/kilianp07/flexplan/core/monitoring"
	"github.com/kilianp07/flexplan/core/planner"
	"github.com/kilianp07/flexplan/core/prediction"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/core/scheduler"
	"github.com/kilianp07/flexplan/core/thermal"
	"github.com/kilianp07/flexplan/core/verifier"
	"github.com/kilianp07/flexplan/infra/homeassistant"
	"github.com/kilianp07/flexplan/infra/logger"
	"github.com/kilianp07/flexplan/infra/metrics"
	"github.com/kilianp07/flexplan/infra/monitoring"
	"github.com/kilianp07/flexplan/infra/mqtt"
	"github.com/kilianp07/flexplan/infra/prices"
	"github.com/kilianp07/flexplan/infra/store"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

// Service wires the planner, the action scheduler, the verifier and the
// load watcher and drives them from cron.
type Service struct {
	Optimizer *planner.Optimizer
	Actions   *scheduler.ActionScheduler
	Executor  *actions.Executor
	Verifier  *verifier.Verifier
	Watcher   *loadwatch.Watcher
	Store     *repository.Store
	Archive   store.Archive

	cfg     *config.Config
	backend *plugins.Backend
	mqtt    *mqtt.PahoClient
	bus     *eventbus.Bus
	sink    coremetrics.MetricsSink
	log     logger.Logger
	now     func() time.Time
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	backend, err := plugins.NewBackend(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	archive, err := plugins.NewArchive(cfg.Archive, backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	repo := repository.NewStore(backend.Repo).WithLogger(logger.New("repository"))

	var publisher actions.Publisher
	var client *mqtt.PahoClient
	if cfg.MQTT.Enabled() {
		client, err = mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		client.Track(stateTopics(cfg.Devices)...)
		publisher = client
	}
	runner := actions.NewRunner(homeassistant.New(cfg.HomeAssistant), publisher, logger.New("actions"))

	priceSource, err := prices.New(cfg.Prices)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("prices: %w", err)
	}
	solver, err := thermal.NewSolver(cfg.Solver)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("solver: %w", err)
	}
	predictor, err := prediction.New(cfg.Prediction)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("prediction: %w", err)
	}

	bus := eventbus.New()
	cont := continuity.NewStore(repo, cfg.Horizon.InitialGap, logger.New("continuity"))
	thermalLog := logger.New("thermal")
	ts := thermal.NewScheduler(thermal.WithLogger(solver, thermalLog), cont, sink, thermalLog)

	deps := planner.Deps{
		Prices:    priceSource,
		Thermal:   ts,
		SOC:       runner,
		Predictor: predictor,
		Store:     repo,
		History:   backend.History,
		Metrics:   sink,
		Bus:       bus,
	}
	if archive != nil {
		deps.Archive = archive
	}
	opt, err := planner.New(cfg.Planner(), cfg.Devices, deps, logger.New("planner"))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("planner: %w", err)
	}

	ver := verifier.New(runner, nil, cfg.Verifier.Config(), sink, bus, logger.New("verifier"))
	exec := actions.NewExecutor(runner, cfg.Devices, ver, sink, bus, logger.New("executor"))
	sched := scheduler.New(exec, nil, logger.New("scheduler"))
	watcher := loadwatch.NewWatcher(cfg.Watcher(), runner, repo, cfg.Devices, sink, bus, logger.New("loadwatch"))

	return &Service{
		Optimizer: opt,
		Actions:   sched,
		Executor:  exec,
		Verifier:  ver,
		Watcher:   watcher,
		Store:     repo,
		Archive:   archive,
		cfg:       cfg,
		backend:   backend,
		mqtt:      client,
		bus:       bus,
		sink:      sink,
		log:       logg,
		now:       time.Now,
	}, nil
}

// stateTopics lists the MQTT topics whose values the verifier compares.
func stateTopics(devices []model.Device) []string {
	var topics []string
	add := func(set model.ActionSet) {
		for _, a := range set.MQTT {
			topics = append(topics, actions.StateTopic(a))
		}
	}
	for _, d := range devices {
		add(d.Start)
		add(d.Stop)
		if b := d.Battery; b != nil {
			add(b.ChargeStart)
			add(b.ChargeStop)
			add(b.DischargeStart)
			add(b.DischargeStop)
		}
		if lm := d.LoadManagement; lm != nil {
			add(lm.Actions.ApplyLimit)
			add(lm.Actions.SwitchToSinglePhase)
			add(lm.Actions.SwitchToThreePhase)
		}
	}
	return topics
}

// Run starts the cron jobs and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.cfg.Metrics.PromAddr != "" {
		coremon.Go(func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PromAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "prom"})
			}
		})
	}
	s.listenPlans(ctx)

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log: s.log})), cron.WithLogger(cronLogger{log: s.log}))
	jobs := []cronJob{
		{"refresh", s.cfg.Cadence.Refresh, s.refreshJob},
		{"battery", s.cfg.Cadence.Battery, s.batteryJob},
		{"verify", s.cfg.Cadence.Verify, s.verifyJob},
	}
	if len(s.Watcher.Managed()) > 0 {
		jobs = append(jobs, cronJob{"loadwatch", s.cfg.Cadence.LoadWatch, s.loadwatchJob})
	}
	for _, j := range jobs {
		if _, err := c.AddFunc(j.spec, s.job(ctx, j.name, j.run)); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	if plan, ok, err := s.Optimizer.Current(ctx); err != nil {
		s.log.Warnf("load persisted plan: %v", err)
	} else if ok {
		n := s.Actions.Reschedule(ctx, plan.Entries)
		s.log.Infof("restored plan %s with %d pending actions", plan.Revision, n)
	}
	if *s.cfg.Cadence.RefreshOnStart {
		s.job(ctx, "refresh", s.refreshJob)()
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

type cronJob struct {
	name string
	spec string
	run  func(context.Context) error
}

func (s *Service) job(ctx context.Context, name string, run func(context.Context) error) func() {
	return func() {
		if err := run(ctx); err != nil {
			s.log.Errorf("%s job: %v", name, err)
			coremon.CaptureException(err, map[string]string{"job": name})
		}
	}
}

// listenPlans reschedules the device actions each time a plan is saved.
func (s *Service) listenPlans(ctx context.Context) {
	eventbus.Listen[eventbus.Event](ctx, s.bus, func(ev eventbus.Event) {
		if _, ok := ev.(events.PlanEvent); ok {
			s.Reschedule(ctx)
		}
	})
}

// Reschedule loads the persisted plan and replaces the pending actions.
func (s *Service) Reschedule(ctx context.Context) int {
	plan, ok, err := s.Optimizer.Current(ctx)
	if err != nil || !ok {
		return 0
	}
	n := s.Actions.Reschedule(ctx, plan.Entries)
	s.log.Infof("plan %s: %d actions scheduled", plan.Revision, n)
	return n
}

// Refresh runs one full planning pass.
func (s *Service) Refresh(ctx context.Context) model.Outcome[model.Plan] {
	return s.Optimizer.Refresh(ctx)
}

type pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

func (s *Service) refreshJob(ctx context.Context) error {
	if err := outcomeErr(s.Optimizer.Refresh(ctx), s.log, "refresh"); err != nil {
		return err
	}
	if p, ok := s.backend.History.(pruner); ok {
		before := s.now().AddDate(0, 0, -2*s.cfg.Battery.HistoryDays)
		n, err := p.Prune(ctx, before)
		if err != nil {
			return fmt.Errorf("prune price history: %w", err)
		}
		if n > 0 {
			s.log.Debugf("pruned %d prices before %s", n, before.Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Service) batteryJob(ctx context.Context) error {
	out := s.Optimizer.ResolveBattery(ctx)
	if out.Status == model.StatusDataUnavailable && (errors.Is(out.Err, planner.ErrNoPlan) || errors.Is(out.Err, planner.ErrHorizonExpired)) {
		s.log.Debugf("battery re-solve skipped: %v", out.Err)
		return nil
	}
	return outcomeErr(out, s.log, "battery")
}

// Verify reconciles the devices against the persisted plan.
func (s *Service) Verify(ctx context.Context) (verifier.Summary, error) {
	plan, ok, err := s.Optimizer.Current(ctx)
	if err != nil {
		return verifier.Summary{}, err
	}
	if !ok {
		return verifier.Summary{}, planner.ErrNoPlan
	}
	return s.Verifier.Reconcile(ctx, plan, s.Executor, s.now()), nil
}

func (s *Service) verifyJob(ctx context.Context) error {
	sum, err := s.Verify(ctx)
	if errors.Is(err, planner.ErrNoPlan) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Infof("verification: %d checked, %d corrected", sum.Checked, sum.Corrected)
	return nil
}

// Limits runs one load watcher pass.
func (s *Service) Limits(ctx context.Context) (loadwatch.Report, error) {
	return s.Watcher.Step(ctx, s.now())
}

func (s *Service) loadwatchJob(ctx context.Context) error {
	_, err := s.Limits(ctx)
	return err
}

// outcomeErr logs degraded outcomes. Missing prices are expected between
// publications and are not reported as a failure.
func outcomeErr(out model.Outcome[model.Plan], log logger.Logger, step string) error {
	switch {
	case out.Status == model.StatusOK:
		return nil
	case out.Status == model.StatusInfeasible:
		log.Warnf("%s produced a degraded plan %s: %v", step, out.Value.Revision, out.Err)
		return nil
	case errors.Is(out.Err, planner.ErrNoPrices):
		log.Warnf("%s skipped, keeping current plan: %v", step, out.Err)
		return nil
	default:
		return fmt.Errorf("%s: %w", step, out.Err)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	var errs []error
	if s.Archive != nil {
		errs = append(errs, s.Archive.Close())
	}
	errs = append(errs, s.backend.Close())
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
