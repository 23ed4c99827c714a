// Package events defines the planning related events emitted on the event bus.
//
// Available event types:
//   - PlanEvent: a plan was stored after a refresh or battery re-solve
//   - ActionEvent: a device action was executed
//   - VerificationEvent: a state check finished
//   - LimitEvent: the load watcher applied new limits
package events
