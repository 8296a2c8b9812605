package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingEvictor struct {
	calls atomic.Int64
	err   error
}

func (c *countingEvictor) Evict(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	evictor := &countingEvictor{}
	s := New(evictor, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return evictor.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSweeper_KeepsRunningAfterFailure(t *testing.T) {
	evictor := &countingEvictor{err: errors.New("store down")}
	s := New(evictor, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return evictor.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	evictor := &countingEvictor{}
	s := New(evictor, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
