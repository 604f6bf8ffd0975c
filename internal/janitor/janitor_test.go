package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type stubPurger struct {
	cutoffs []time.Time
	purged  int
	err     error
}

func (s *stubPurger) PurgeDeletedSeries(_ context.Context, before time.Time) (int, error) {
	s.cutoffs = append(s.cutoffs, before)
	return s.purged, s.err
}

func TestRunPurgeAppliesRetention(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{purged: 3}
	j := New(purger, "@daily", 30*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	j.runPurge(context.Background())

	if len(purger.cutoffs) != 1 {
		t.Fatalf("purge calls = %d", len(purger.cutoffs))
	}
	if want := now.Add(-30 * 24 * time.Hour); !purger.cutoffs[0].Equal(want) {
		t.Fatalf("cutoff = %v, want %v", purger.cutoffs[0], want)
	}
}

func TestRunPurgeSwallowsErrors(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{err: errors.New("boom")}
	j := New(purger, "@daily", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	j.runPurge(context.Background())

	if len(purger.cutoffs) != 1 {
		t.Fatalf("purge calls = %d", len(purger.cutoffs))
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	j := New(&stubPurger{}, "not a cron spec", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := j.Start(context.Background()); err == nil {
		t.Fatal("expected an error for a malformed spec")
	}
}
