package config

import "testing"

func TestDefaultWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights should validate, got %v", err)
	}
}

func TestValidateRejectsWeightsNotSummingToOne(t *testing.T) {
	w := Weights{Behavioral: 0.5, Content: 0.5, Temporal: 0.5, Repository: 0.5}
	if err := w.Validate(); err == nil {
		t.Fatalf("expected error for weights summing to 2.0")
	}
}

func TestValidateAcceptsWithinTolerance(t *testing.T) {
	w := Weights{Behavioral: 0.25, Content: 0.35, Temporal: 0.20, Repository: 0.195}
	if err := w.Validate(); err != nil {
		t.Fatalf("expected weights within tolerance to validate, got %v", err)
	}
}

func TestDefaultQueueCapacitiesMatchSpec(t *testing.T) {
	c := DefaultQueueCapacities()
	if c.Critical != 1000 || c.High != 2000 || c.Medium != 5000 || c.Low != 10000 || c.Info != 20000 {
		t.Fatalf("unexpected default queue capacities: %+v", c)
	}
}
