package model

import (
	"testing"
	"time"
)

func TestPriceHorizonSlots(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := PriceHorizon{Start: start, SlotDuration: 15 * time.Minute, Prices: make([]float64, 8), LockEndSlot: 2}
	if err := h.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := h.SlotIndex(start.Add(31 * time.Minute)); got != 2 {
		t.Fatalf("expected slot 2 got %d", got)
	}
	if got := h.SlotIndex(start.Add(-time.Minute)); got != -1 {
		t.Fatalf("expected slot -1 got %d", got)
	}
	if !h.End().Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("unexpected end %s", h.End())
	}
	if !h.LockEnd().Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("unexpected lock end %s", h.LockEnd())
	}
	if !h.Expired(start.Add(2 * time.Hour)) || h.Expired(start) {
		t.Fatalf("unexpected expiry")
	}
}

func TestPriceHorizonValidate(t *testing.T) {
	if err := (PriceHorizon{SlotDuration: time.Minute}).Validate(); err == nil {
		t.Fatalf("expected error for empty prices")
	}
	if err := (PriceHorizon{Prices: []float64{1}}).Validate(); err == nil {
		t.Fatalf("expected error for zero slot")
	}
}

func TestSlotsFor(t *testing.T) {
	if got := SlotsFor(time.Hour, 15*time.Minute); got != 4 {
		t.Fatalf("expected 4 got %d", got)
	}
	if got := SlotsFor(10*time.Minute, 15*time.Minute); got != 0 {
		t.Fatalf("expected 0 got %d", got)
	}
}
