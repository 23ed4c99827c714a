// Package scheduler turns a merged plan into one-shot start and stop jobs.
// Every reschedule replaces all pending jobs so the job set always mirrors
// the latest stored plan.
package scheduler
