package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRun_AssignsIDAndSequence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	events := []Event{
		{Time: 495, Level: "critical", Source: "tb.inj", Kind: "injected", Message: "scoreboard lost sync"},
		{Time: 495, Level: "warning", Source: "tb", Kind: "objections_outstanding", Message: "simulation ended with objections outstanding"},
		{Time: 495, Level: "error", Source: "tb.drv", Kind: "residual_work", Message: "residual item in queue"},
	}
	run, err := s.WriteRun(ctx, Run{Scenario: "kill_mid_run", Seed: 1, EndTime: 495, Failures: 2, Residual: 1}, events)
	require.NoError(t, err)

	id, err := uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.False(t, run.StartedAt.IsZero())

	got, err := s.ReadEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, i+1, ev.Seq)
		want := events[i]
		want.Seq = i + 1
		assert.Equal(t, want, ev)
	}
}

func TestWriteRun_RoundTripsRunFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Run{
		ID:        "run-1",
		Scenario:  "drop_delay",
		Seed:      math.MaxUint64,
		Passed:    true,
		Settled:   true,
		EndTime:   305,
		Residual:  0,
		StartedAt: started,
	}
	_, err := s.WriteRun(ctx, in, nil)
	require.NoError(t, err)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(started))
	got.StartedAt = started
	assert.Equal(t, in, got)
}

func TestWriteRun_DuplicateIDFailsAtomically(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, Run{ID: "dup", Scenario: "a"}, []Event{{Level: "error", Message: "first"}})
	require.NoError(t, err)

	_, err = s.WriteRun(ctx, Run{ID: "dup", Scenario: "b"}, []Event{{Level: "error", Message: "second"}})
	require.Error(t, err)

	events, err := s.ReadEvents(ctx, "dup")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "first", events[0].Message)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "a", "a"} {
		_, err := s.WriteRun(ctx, Run{
			ID:        string(rune('1' + i)),
			Scenario:  name,
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}, nil)
		require.NoError(t, err)
	}

	ids := func(runs []Run) []string {
		out := make([]string, len(runs))
		for i, r := range runs {
			out[i] = r.ID
		}
		return out
	}

	tests := []struct {
		name     string
		scenario string
		limit    int
		want     []string
	}{
		{"all newest first", "", 0, []string{"4", "3", "2", "1"}},
		{"filtered", "a", 0, []string{"4", "3", "1"}},
		{"limited", "a", 2, []string{"4", "3"}},
		{"unknown scenario", "zzz", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(ctx, tt.scenario, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(runs))
		})
	}
}

func TestListRuns_SubsecondOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// A whole second and a fractional one: fixed-width timestamps keep text
	// order equal to time order.
	base := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
	_, err := s.WriteRun(ctx, Run{ID: "early", Scenario: "x", StartedAt: base}, nil)
	require.NoError(t, err)
	_, err = s.WriteRun(ctx, Run{ID: "late", Scenario: "x", StartedAt: base.Add(100 * time.Millisecond)}, nil)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "x", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "late", runs[0].ID)
}

func TestReadEvents_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEvents(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestReadEvents_RunWithoutEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.WriteRun(ctx, Run{Scenario: "quiet", Passed: true}, nil)
	require.NoError(t, err)

	events, err := s.ReadEvents(ctx, run.ID)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
