package viewer

import (
	"context"
	"sync"
)

type Outcome int

const (
	Pending Outcome = iota
	Displayed
	Failed
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Displayed:
		return "displayed"
	case Failed:
		return "failed"
	case Superseded:
		return "superseded"
	default:
		return "pending"
	}
}

// Task is the pending result of a DisplayFrame call.
type Task struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
	err     error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) resolve(outcome Outcome, err error) {
	t.once.Do(func() {
		t.outcome = outcome
		t.err = err
		close(t.done)
	})
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task resolves or ctx is done.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}
