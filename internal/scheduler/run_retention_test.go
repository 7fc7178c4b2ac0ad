package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"zapflow_backend/platform/logger"
)

type pruneCall struct {
	before time.Time
}

type fakePruner struct {
	calls []pruneCall
	err   error
}

func (f *fakePruner) DeleteRunsBefore(_ context.Context, before time.Time) (int64, error) {
	f.calls = append(f.calls, pruneCall{before: before})
	return 3, f.err
}

func TestRunRetentionUsesCutoff(t *testing.T) {
	pruner := &fakePruner{}
	job := NewRunRetention(pruner, logger.Nop(), time.Hour, 48*time.Hour)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	job.cleanup(context.Background())

	if len(pruner.calls) != 1 {
		t.Fatalf("expected one prune call, got %d", len(pruner.calls))
	}
	if want := fixed.Add(-48 * time.Hour); !pruner.calls[0].before.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, pruner.calls[0].before)
	}
}

func TestRunRetentionStopsWithContext(t *testing.T) {
	pruner := &fakePruner{err: errors.New("db down")}
	job := NewRunRetention(pruner, logger.Nop(), time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if job.retention != defaultRunRetention {
		t.Fatalf("expected default retention, got %v", job.retention)
	}
}
