package ability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Step is one element of an execution plan: a named wait when Do is nil,
// otherwise a named action.
type Step struct {
	Name string
	Wait float64
	Do   func(ctx context.Context) error
}

// WaitStep returns a named suspension of d seconds.
func WaitStep(name string, d float64) Step { return Step{Name: name, Wait: d} }

// ActionStep returns a named action.
func ActionStep(name string, fn func(ctx context.Context) error) Step {
	return Step{Name: name, Do: fn}
}

// StepError reports a failed or panicking action.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %q: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Task runs a plan of steps cooperatively. Waits are frame-granular
// suspensions consumed by Advance; cancellation is observed at every step
// boundary.
// It is not safe for concurrent use.
type Task struct {
	ID     uuid.UUID
	steps  []Step
	next   int
	left   float64
	inWait bool
	ctx    context.Context
	cancel context.CancelFunc
	active bool
	done   bool
}

// NewTask creates a task over steps whose cancellation derives from parent.
func NewTask(parent context.Context, steps []Step) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{ID: uuid.New(), steps: steps, ctx: ctx, cancel: cancel}
}

// Cancel signals the task to stop at its next suspension point.
func (t *Task) Cancel() { t.cancel() }

// Done reports whether the task has finished, failed or been cancelled.
func (t *Task) Done() bool { return t.done }

// Running reports whether Advance is currently on the stack.
func (t *Task) Running() bool { return t.active }

// Current returns the name of the step the task is suspended in, or "" when done.
func (t *Task) Current() string {
	if t.done || t.next >= len(t.steps) {
		return ""
	}
	return t.steps[t.next].Name
}

// Advance runs the task for dt seconds of simulated time. Actions run
// immediately; waits consume dt, carrying any remainder into the next step.
//
// Postcondition: Returns done=true once the plan finishes, an action fails,
// or the task is cancelled. err is context.Canceled on cancellation and a
// *StepError on a failed or panicking action.
func (t *Task) Advance(dt float64) (done bool, err error) {
	if t.done {
		return true, nil
	}
	t.active = true
	defer func() {
		t.active = false
		if done {
			t.done = true
			t.cancel()
		}
	}()

	budget := dt
	for {
		if err := t.ctx.Err(); err != nil {
			return true, err
		}
		if t.next >= len(t.steps) {
			return true, nil
		}
		step := t.steps[t.next]
		if step.Do != nil {
			if err := runStep(t.ctx, step); err != nil {
				return true, err
			}
			t.next++
			continue
		}
		if !t.inWait {
			t.inWait = true
			t.left = step.Wait
		}
		if t.left > budget+waitEpsilon {
			t.left -= budget
			return false, nil
		}
		budget -= t.left
		if budget < 0 {
			budget = 0
		}
		t.inWait = false
		t.left = 0
		t.next++
	}
}

// waitEpsilon absorbs float drift from accumulating frame deltas.
const waitEpsilon = 1e-6

func runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StepError{Step: step.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if e := step.Do(ctx); e != nil {
		return &StepError{Step: step.Name, Err: e}
	}
	return nil
}
