package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/flexplan/core/logger"
	"github.com/kilianp07/flexplan/core/model"
)

// Executor runs device actions.
type Executor interface {
	Device(name string) (model.Device, bool)
	Execute(ctx context.Context, device string, kind model.ActionKind, tr model.Transition) error
}

// Job is a pending device action.
type Job struct {
	ID         string
	At         time.Time
	Device     string
	Kind       model.ActionKind
	Transition model.Transition
}

type pending struct {
	job   Job
	timer Stopper
}

// ActionScheduler keeps one timer per pending start or stop action.
type ActionScheduler struct {
	mu     sync.Mutex
	jobs   map[string]*pending
	exec   Executor
	timers Timers
	log    logger.Logger
}

// New creates an ActionScheduler. A nil timers uses RealTimers.
func New(exec Executor, timers Timers, log logger.Logger) *ActionScheduler {
	if timers == nil {
		timers = RealTimers{}
	}
	return &ActionScheduler{jobs: map[string]*pending{}, exec: exec, timers: timers, log: log}
}

// JobID names the job of an entry transition.
func JobID(e model.ScheduleEntry, tr model.Transition) string {
	at := e.Start
	if tr == model.TransitionStop {
		at = e.Stop
	}
	return fmt.Sprintf("%s_%s_%s_%s", e.DeviceID, e.Kind, tr, at.UTC().Format(time.RFC3339))
}

// Reschedule drops every pending job and schedules the future transitions
// of entries. Entries already over, invalid or bound to unknown devices are
// skipped. It returns the number of scheduled jobs.
func (s *ActionScheduler) Reschedule(ctx context.Context, entries []model.ScheduleEntry) int {
	s.RemoveAll()
	now := s.timers.Now()
	count := 0
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			s.log.Warnf("skipping entry: %v", err)
			continue
		}
		if !e.Stop.After(now) {
			continue
		}
		dev, ok := s.exec.Device(e.DeviceID)
		if !ok {
			s.log.Warnf("skipping entry for unknown device %s", e.DeviceID)
			continue
		}
		if e.Start.After(now) {
			if _, ok := dev.Actions(e.Kind, model.TransitionStart); ok {
				s.add(ctx, e, model.TransitionStart, now)
				count++
			}
		}
		if _, ok := dev.Actions(e.Kind, model.TransitionStop); ok {
			s.add(ctx, e, model.TransitionStop, now)
			count++
		}
	}
	s.log.Infof("scheduled %d actions from %d entries", count, len(entries))
	return count
}

func (s *ActionScheduler) add(ctx context.Context, e model.ScheduleEntry, tr model.Transition, now time.Time) {
	at := e.Start
	if tr == model.TransitionStop {
		at = e.Stop
	}
	job := Job{ID: JobID(e, tr), At: at, Device: e.DeviceID, Kind: e.Kind, Transition: tr}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[job.ID]; ok {
		old.timer.Stop()
	}
	p := &pending{job: job}
	p.timer = s.timers.AfterFunc(at.Sub(now), func() { s.fire(ctx, p) })
	s.jobs[job.ID] = p
}

func (s *ActionScheduler) fire(ctx context.Context, p *pending) {
	s.mu.Lock()
	if cur, ok := s.jobs[p.job.ID]; !ok || cur != p {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, p.job.ID)
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := s.exec.Execute(ctx, p.job.Device, p.job.Kind, p.job.Transition); err != nil {
		s.log.Errorf("job %s: %v", p.job.ID, err)
	}
}

// RemoveAll cancels every pending job.
func (s *ActionScheduler) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.jobs {
		p.timer.Stop()
		delete(s.jobs, id)
	}
}

// Jobs lists the pending jobs ordered by time.
func (s *ActionScheduler) Jobs() []Job {
	s.mu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, p := range s.jobs {
		out = append(out, p.job)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
