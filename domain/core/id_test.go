package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestComputeKeyHashOrderSensitive(t *testing.T) {
	a := ComputeKeyHash([]string{"year", "Murder", "Rape"})
	if a != ComputeKeyHash([]string{"year", "Murder", "Rape"}) {
		t.Error("expected stable hash for the same parts")
	}
	if a == ComputeKeyHash([]string{"year", "Rape", "Murder"}) {
		t.Error("reordered parts must hash differently")
	}
	if a == ComputeKeyHash([]string{"Murder", "year"}) {
		t.Error("different selections must hash differently")
	}
	if len(a.Short()) != 12 {
		t.Errorf("expected 12-char short hash, got %q", a.Short())
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsSourceNotFound(NewSourceNotFoundError("x.csv", nil)) {
		t.Error("expected source-not-found classification")
	}
	if !IsRequestError(NewUnknownMetricError("Arson")) {
		t.Error("unknown metric is a request error")
	}
	if !IsDataError(NewInvalidPopulationError(0)) {
		t.Error("invalid population is a data error")
	}
	if !errors.Is(NewInsufficientDataError("n=1"), ErrInsufficientData) {
		t.Error("expected wrapped ErrInsufficientData")
	}
}
