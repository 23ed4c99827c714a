package loadwatch

import (
	"sync"
	"time"
)

// Phase is the number of phases a charger draws from.
type Phase string

const (
	PhaseSingle Phase = "single"
	PhaseThree  Phase = "three"
)

// Defaults of the phase controller.
const (
	DefaultPhaseThreshold = 4000.0 // W
	DefaultPhaseDelay     = 5 * time.Minute
	Voltage               = 230.0
)

// PhaseState is the persisted phase of a device.
type PhaseState struct {
	Current        Phase     `json:"current"`
	LastToSingle   time.Time `json:"last_to_single,omitempty"`
	LastSwitchedAt time.Time `json:"last_switched_at,omitempty"`
}

// PhaseController decides phase switches with a cool-down on switching
// back to three phases.
type PhaseController struct {
	Threshold float64
	Delay     time.Duration

	mu     sync.Mutex
	states map[string]PhaseState
}

// NewPhaseController creates a controller. Zero values select defaults.
func NewPhaseController(threshold float64, delay time.Duration) *PhaseController {
	if threshold <= 0 {
		threshold = DefaultPhaseThreshold
	}
	if delay <= 0 {
		delay = DefaultPhaseDelay
	}
	return &PhaseController{Threshold: threshold, Delay: delay, states: map[string]PhaseState{}}
}

// Restore seeds the controller with persisted states.
func (p *PhaseController) Restore(states map[string]PhaseState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range states {
		p.states[k] = v
	}
}

// States returns a copy of the current states.
func (p *PhaseController) States() map[string]PhaseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]PhaseState, len(p.states))
	for k, v := range p.states {
		out[k] = v
	}
	return out
}

// Current returns the phase of a device, three when unknown.
func (p *PhaseController) Current(device string) Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[device]; ok && st.Current != "" {
		return st.Current
	}
	return PhaseThree
}

// Decide returns the phase a device should switch to for limitW, or false
// when it stays on its current phase.
func (p *PhaseController) Decide(device string, limitW float64, now time.Time) (Phase, bool) {
	target := PhaseThree
	if limitW < p.Threshold {
		target = PhaseSingle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.states[device]
	cur := st.Current
	if cur == "" {
		cur = PhaseThree
	}
	if target == cur {
		return cur, false
	}
	if target == PhaseThree && !st.LastToSingle.IsZero() && now.Sub(st.LastToSingle) < p.Delay {
		return cur, false
	}
	return target, true
}

// Record stores a completed switch.
func (p *PhaseController) Record(device string, phase Phase, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.states[device]
	st.Current = phase
	st.LastSwitchedAt = now
	if phase == PhaseSingle {
		st.LastToSingle = now
	}
	p.states[device] = st
}

// LimitVars are the template variables of a limit.
func (p *PhaseController) LimitVars(limitW float64) map[string]any {
	return map[string]any{
		"limit_watts":  limitW,
		"limit_amps":   limitW / Voltage,
		"three_phase":  limitW > p.Threshold,
		"single_phase": limitW <= p.Threshold,
	}
}
