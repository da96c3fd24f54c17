package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingPruner struct {
	calls atomic.Int32
	err   error
}

func (p *countingPruner) Prune(context.Context) (int, error) {
	p.calls.Add(1)
	return 1, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewPruneJobRejectsBadSchedule(t *testing.T) {
	if _, err := NewPruneJob("every tuesday", time.UTC, &countingPruner{}, discardLogger()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestPruneJobRunsOnStart(t *testing.T) {
	p := &countingPruner{}
	j, err := NewPruneJob("", time.UTC, p, discardLogger())
	if err != nil {
		t.Fatalf("NewPruneJob: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	cancel()

	if got := p.calls.Load(); got != 1 {
		t.Errorf("prune calls = %d, want 1", got)
	}
}

func TestPruneJobFiresOnSchedule(t *testing.T) {
	p := &countingPruner{err: errors.New("disk")}
	j, err := NewPruneJob("@every 1s", time.UTC, p, discardLogger())
	if err != nil {
		t.Fatalf("NewPruneJob: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for p.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := p.calls.Load(); got < 2 {
		t.Errorf("prune calls = %d, want at least 2", got)
	}
}
