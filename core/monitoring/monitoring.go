// Package monitoring holds the process wide error reporter. Jobs, device
// actions and the MQTT publisher report failures here with tags naming what
// failed.
package monitoring

import (
	"sync"
	"time"
)

// Monitor reports errors and recovered panics to an external service.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	RecoverPanic(v any)
	Flush(timeout time.Duration)
}

// NopMonitor drops everything. It is active until Init is called.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) RecoverPanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init replaces the global monitor. nil is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover reports a panic and re-raises it. It must be deferred directly.
func Recover() {
	if r := recover(); r != nil {
		get().RecoverPanic(r)
		panic(r)
	}
}

// Go runs fn in a goroutine whose panics are reported before crashing.
func Go(fn func()) {
	go func() {
		defer Recover()
		fn()
	}()
}

func Flush(d time.Duration) { get().Flush(d) }
