package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSweeper_RunOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sweep     SweepFunc
		wantErr   bool
		wantEvent string
	}{
		{name: "nil sweep is a no-op"},
		{name: "nothing removed", sweep: func(context.Context) (int, error) { return 0, nil }},
		{name: "removed entries logged", sweep: func(context.Context) (int, error) { return 3, nil }, wantEvent: "sweep_removed"},
		{name: "error wrapped", sweep: func(context.Context) (int, error) { return 0, errors.New("channel closed") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			s := NewSweeper("dlq", tt.sweep, time.Minute, 0, zap.New(core))
			err := s.runOnce(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "dlq sweep")
				return
			}
			require.NoError(t, err)
			if tt.wantEvent == "" {
				assert.Zero(t, logs.Len())
				return
			}
			entries := logs.FilterMessage(tt.wantEvent).All()
			require.Len(t, entries, 1)
			assert.Equal(t, "dlq", entries[0].ContextMap()["sweeper"])
		})
	}
}

func TestSweeper_RunOnceHasDeadline(t *testing.T) {
	t.Parallel()

	s := NewSweeper("fingerprint_cache", func(ctx context.Context) (int, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return 0, errors.New("no deadline")
		}
		if time.Until(deadline) > 5*time.Second {
			return 0, errors.New("deadline too far")
		}
		return 0, nil
	}, time.Hour, 5*time.Second, zap.NewNop())

	require.NoError(t, s.runOnce(context.Background()))
}

func TestSweeper_StartSweepsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	swept := make(chan struct{}, 1)
	s := NewSweeper("fingerprint_cache", func(context.Context) (int, error) {
		calls.Add(1)
		select {
		case swept <- struct{}{}:
		default:
		}
		return 1, nil
	}, time.Hour, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run on start")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Equal(t, int32(1), calls.Load())
}

type stubPurger struct {
	retention time.Duration
}

func (p *stubPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	p.retention = retention
	return 2, nil
}

func TestDeadLetterPurge(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{}
	n, err := DeadLetterPurge(purger, 72*time.Hour)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 72*time.Hour, purger.retention)
}
