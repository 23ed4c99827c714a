package prediction

import (
	"testing"
	"time"

	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/model"
)

func profile(v float64) []float64 {
	p := make([]float64, 24)
	for i := range p {
		p[i] = v
	}
	return p
}

func TestStaticProfile_Hints(t *testing.T) {
	hourly := profile(1)
	hourly[18] = 2
	p := StaticProfile{Hourly: hourly, Location: time.UTC}
	h := model.PriceHorizon{
		Start:        time.Date(2026, 1, 5, 17, 45, 0, 0, time.UTC),
		SlotDuration: 15 * time.Minute,
		Prices:       []float64{0.1, 0.2, 0.3},
	}
	hints := p.Hints("house", h)
	if len(hints) != 3 {
		t.Fatalf("expected 3 hints, got %d", len(hints))
	}
	if hints[0] != 0.25 || hints[1] != 0.5 || hints[2] != 0.5 {
		t.Fatalf("unexpected hints %v", hints)
	}
}

func TestStaticProfile_DeviceOverride(t *testing.T) {
	p := StaticProfile{Hourly: profile(1), Devices: map[string][]float64{"bat": profile(4)}, Location: time.UTC}
	h := model.PriceHorizon{Start: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), SlotDuration: time.Hour, Prices: []float64{1}}
	if got := p.Hints("bat", h)[0]; got != 4 {
		t.Fatalf("expected device profile, got %v", got)
	}
	if got := p.Hints("other", h)[0]; got != 1 {
		t.Fatalf("expected default profile, got %v", got)
	}
}

func TestNew(t *testing.T) {
	p, err := New(factory.ModuleConfig{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := p.(None); !ok {
		t.Fatalf("expected None predictor, got %T", p)
	}
	if p.Hints("x", model.PriceHorizon{}) != nil {
		t.Fatalf("expected no hints")
	}

	hourly := make([]any, 24)
	for i := range hourly {
		hourly[i] = 0.5
	}
	p, err = New(factory.ModuleConfig{Type: "static", Conf: map[string]any{"hourly": hourly, "timezone": "UTC"}})
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, ok := p.(StaticProfile); !ok {
		t.Fatalf("expected StaticProfile, got %T", p)
	}

	if _, err := New(factory.ModuleConfig{Type: "static", Conf: map[string]any{"hourly": []any{1.0}}}); err == nil {
		t.Fatalf("expected error for short profile")
	}
}
