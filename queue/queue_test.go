package queue

import (
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/config"
	"github.com/sentryhq/ghanomaly/severity"
)

func TestPriorityOrdersBandsByRank(t *testing.T) {
	ts := time.Now()
	critical := Priority(severity.Critical, 0.9, ts, 0.5, 0)
	high := Priority(severity.High, 0.9, ts, 0.5, 0)
	if critical <= high {
		t.Fatalf("expected critical priority (%v) > high priority (%v)", critical, high)
	}
}

func TestPriorityIncreasesWithFinalScore(t *testing.T) {
	ts := time.Now()
	low := Priority(severity.High, 0.1, ts, 0, 0)
	high := Priority(severity.High, 0.9, ts, 0, 0)
	if high <= low {
		t.Fatalf("expected higher final_score to yield higher priority")
	}
}

func TestBandCapacityMatchesDefaults(t *testing.T) {
	caps := config.DefaultQueueCapacities()
	if bandCapacity(caps, severity.Critical) != 1000 {
		t.Fatalf("expected critical capacity 1000, got %d", bandCapacity(caps, severity.Critical))
	}
	if bandCapacity(caps, severity.Info) != 20000 {
		t.Fatalf("expected info capacity 20000, got %d", bandCapacity(caps, severity.Info))
	}
}
