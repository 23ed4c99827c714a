package events

import (
	"time"

	"github.com/kilianp07/flexplan/core/model"
)

// PlanEvent is published each time a plan document is saved. Reason is
// "refresh" or "battery".
type PlanEvent struct {
	Revision string
	Reason   string
	Entries  int
	Status   model.Status
	Time     time.Time
}
