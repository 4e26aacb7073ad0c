package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/engine/enginetest"
)

func TestEvalAsync(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	task := s.EvalAsync(ctx, "var x; var y;")
	require.NoError(t, task.Wait(ctx))
	assert.Equal(t, "eval", task.Op())
	assert.NoError(t, task.Err())

	names, err := s.Variables().Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestReadAsyncReportsError(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	task := s.ReadAsync(ctx, "/missing/model.mod")
	<-task.Done()
	var reported *EngineReportedError
	assert.ErrorAs(t, task.Err(), &reported)
}

func TestReadDataAsync(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "n.dat", "param n := 5;")
	s, eng := newTestSession(t, func(c *Config) { c.Engine.Dir = dir })
	eng.Declare(engine.KindParameter, "n", 0)

	require.NoError(t, s.ReadDataAsync(ctx, "n.dat").Wait(ctx))
	v, err := s.Value(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Float())
}

// blockingSolve returns an OnSolve hook that reports started and then
// blocks until its context is cancelled.
func blockingSolve(started chan<- struct{}) func(context.Context, *enginetest.Engine) error {
	return func(ctx context.Context, _ *enginetest.Engine) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestInterruptCancelsSolve(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)
	started := make(chan struct{})
	eng.OnSolve = blockingSolve(started)

	task := s.SolveAsync(ctx)
	<-started
	assert.True(t, s.IsBusy())
	assert.Nil(t, task.Err())

	require.NoError(t, s.Interrupt(ctx))
	assert.ErrorIs(t, task.Wait(ctx), context.Canceled)
	assert.Equal(t, 1, eng.Interrupts())
	assert.Eventually(t, func() bool { return !s.IsBusy() }, time.Second, 5*time.Millisecond)
}

func TestWaitHonoursContext(t *testing.T) {
	s, eng := newTestSession(t)
	started := make(chan struct{})
	eng.OnSolve = blockingSolve(started)

	task := s.SolveAsync(context.Background())
	<-started

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(waitCtx), context.DeadlineExceeded)

	// Close cancels the running task and waits for it.
	require.NoError(t, s.Close())
	assert.ErrorIs(t, task.Err(), context.Canceled)
}

func TestMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	s, eng := newTestSession(t)

	inFlight := make(chan struct{}, 2)
	release := make(chan struct{})
	var maxSeen int
	eng.OnEvaluate = func(_ context.Context, _ *enginetest.Engine, _ string) error {
		inFlight <- struct{}{}
		if n := len(inFlight); n > maxSeen {
			maxSeen = n
		}
		<-release
		<-inFlight
		return nil
	}

	first := s.EvalAsync(ctx, "var a;")
	second := s.EvalAsync(ctx, "var b;")
	assert.Eventually(t, func() bool { return len(inFlight) == 1 }, time.Second, time.Millisecond)
	// The second eval is held at the gate while the first runs.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, len(inFlight))

	close(release)
	require.NoError(t, first.Wait(ctx))
	require.NoError(t, second.Wait(ctx))
	assert.Equal(t, 1, maxSeen)
}

func TestGateHonoursContext(t *testing.T) {
	s, eng := newTestSession(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	eng.OnEvaluate = func(context.Context, *enginetest.Engine, string) error {
		close(entered)
		<-release
		return nil
	}

	first := s.EvalAsync(context.Background(), "var a;")
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Eval(ctx, "var b;")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, first.Wait(context.Background()))
}
