package service

import (
	"testing"

	"droidagent/config"
	"droidagent/models"
)

func newTestStore(t *testing.T) *StepStore {
	t.Helper()
	db, err := config.InitDatabaseAt(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStepStore(db)
}

func TestRecordStepFillsDefaults(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.RecordStep(models.StepRecord{
		DeviceID: "device_a",
		Text:     "do(tap, element=[100, 200])",
		Kind:     "tap",
		Success:  true,
	})
	if err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}
	if stored.ID == "" {
		t.Error("expected a generated step id")
	}
	if stored.CreatedAt == 0 {
		t.Error("expected a generated timestamp")
	}
}

func TestRecentStepsNewestFirstPerDevice(t *testing.T) {
	store := newTestStore(t)

	for i, step := range []models.StepRecord{
		{DeviceID: "device_a", Text: "do(tap, element=[1, 1])", Kind: "tap", Success: true},
		{DeviceID: "device_b", Text: "do(back)", Kind: "back", Success: true},
		{DeviceID: "device_a", Text: "do(swipe, start=[1, 9], end=[1, 2])", Kind: "swipe", Success: true},
		{DeviceID: "device_a", Text: "finish(message=\"done\")", Kind: "finish", Success: true, Finished: true},
	} {
		step.CreatedAt = int64(1000 + i)
		if _, err := store.RecordStep(step); err != nil {
			t.Fatalf("RecordStep failed: %v", err)
		}
	}

	steps, err := store.RecentSteps("device_a", 2)
	if err != nil {
		t.Fatalf("RecentSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Kind != "finish" || steps[1].Kind != "swipe" {
		t.Errorf("expected newest first [finish swipe], got [%s %s]", steps[0].Kind, steps[1].Kind)
	}
	for _, step := range steps {
		if step.DeviceID != "device_a" {
			t.Errorf("steps for device_a must not include %s", step.DeviceID)
		}
	}
	if !steps[0].Finished {
		t.Error("finished flag should survive the round trip")
	}
}

func TestRecentStepsEmptyDevice(t *testing.T) {
	store := newTestStore(t)

	steps, err := store.RecentSteps("device_missing", 10)
	if err != nil {
		t.Fatalf("RecentSteps failed: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %d", len(steps))
	}
}
