package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/flexplan/core/events"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events not reported directly by their producer. It stops when the context
// is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.RevisionRecorder)
	if !ok {
		return
	}
	eventbus.Listen[eventbus.Event](ctx, bus, func(ev eventbus.Event) {
		e, ok := ev.(events.PlanEvent)
		if !ok {
			return
		}
		at := e.Time
		if at.IsZero() {
			at = time.Now()
		}
		_ = rec.RecordRevision(coremetrics.RevisionEvent{
			Revision: e.Revision,
			Reason:   e.Reason,
			Entries:  e.Entries,
			Time:     at,
		})
	})
}
