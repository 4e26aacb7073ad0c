package session

import (
	"context"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Task is an operation running in the background.
type Task struct {
	op     string
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Op returns the name of the operation.
func (t *Task) Op() string { return t.op }

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's result, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) spawn(ctx context.Context, op string, fn func(context.Context) error) *Task {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task{op: op, done: make(chan struct{}), cancel: cancel}

	s.tasksMu.Lock()
	s.tasks[t] = struct{}{}
	s.tasksMu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.tasksMu.Lock()
			delete(s.tasks, t)
			s.tasksMu.Unlock()
			close(t.done)
		}()
		t.err = fn(tctx)
	}()
	return t
}

// EvalAsync runs Eval in the background.
func (s *Session) EvalAsync(ctx context.Context, statements string) *Task {
	return s.spawn(ctx, "eval", func(ctx context.Context) error { return s.Eval(ctx, statements) })
}

// ReadAsync runs Read in the background.
func (s *Session) ReadAsync(ctx context.Context, path string) *Task {
	return s.spawn(ctx, "read", func(ctx context.Context) error { return s.Read(ctx, path) })
}

// ReadDataAsync runs ReadData in the background.
func (s *Session) ReadDataAsync(ctx context.Context, path string) *Task {
	return s.spawn(ctx, "read_data", func(ctx context.Context) error { return s.ReadData(ctx, path) })
}

// SolveAsync runs Solve in the background.
func (s *Session) SolveAsync(ctx context.Context) *Task {
	return s.spawn(ctx, "solve", s.Solve)
}

// IsBusy reports whether any engine call is in flight.
func (s *Session) IsBusy() bool {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	return s.inflight > 0
}

// Interrupt cancels every background task and asks the engine to abort
// the operation it is running, if it supports that.
func (s *Session) Interrupt(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	s.cancelTasks()
	if in, ok := s.eng.(engine.Interrupter); ok {
		return in.Interrupt(ctx)
	}
	return nil
}

func (s *Session) cancelTasks() {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	for t := range s.tasks {
		t.cancel()
	}
}

// waitTasks blocks until all background tasks have finished.
func (s *Session) waitTasks() {
	s.tasksMu.Lock()
	pending := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		pending = append(pending, t)
	}
	s.tasksMu.Unlock()

	for _, t := range pending {
		<-t.done
	}
}
