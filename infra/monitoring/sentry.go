// Package monitoring reports job and device failures to Sentry.
package monitoring

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/flexplan/config"
	coremon "github.com/kilianp07/flexplan/core/monitoring"
)

const flushTimeout = 2 * time.Second

// NewSentryMonitor returns a NopMonitor when no DSN is configured.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
		ServerName:       "flexplan",
	})
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	scope := sentry.NewScope()
	scope.SetTags(cfg.Tags)
	return &sentryMonitor{hub: sentry.NewHub(client, scope)}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

// CaptureException tags the event with the job, device or topic that failed.
func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) RecoverPanic(v any) {
	s.hub.Recover(v)
	s.hub.Flush(flushTimeout)
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
