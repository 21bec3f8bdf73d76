// Package taskmanager implements the bounded worker pool each engine
// exposes to its callers (engine.Engine.Tasks) for running independent
// work concurrently; the engine's own reads and writes do not use it.
//
// It differs from a plain worker pool in one respect, taken from
// original_source/src/apiDb/TasksManager.hpp: a task started while
// already running inside another task inherits that task's id, and
// joining on a task id from inside one of its own descendants waits for
// every descendant without deadlocking the pool — the joining goroutine
// gives its worker slot back to the pool for the duration of the wait.
package taskmanager

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TaskID identifies a task and every sub-task spawned underneath it.
type TaskID uint64

type ctxKey struct{}

type taskContext struct {
	id      TaskID
	release func()
	reacq   func(ctx context.Context) error
}

// TaskManager is a bounded pool of worker slots with task-id
// re-entrancy: addTask inherits the calling task's id when the caller is
// itself running inside a task, and joinTask(id) waits for every task
// (parent and children) sharing that id, returning the first error any
// of them reported.
type TaskManager struct {
	sem *semaphore.Weighted

	nextID atomic.Uint64

	mu     sync.Mutex
	groups map[TaskID]*errgroup.Group
}

// New creates a TaskManager with capacity concurrent worker slots.
func New(capacity int64) *TaskManager {
	return &TaskManager{
		sem:    semaphore.NewWeighted(capacity),
		groups: make(map[TaskID]*errgroup.Group),
	}
}

func fromContext(ctx context.Context) (taskContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(taskContext)
	return tc, ok
}

// IDFromContext returns the TaskID carried by a context previously
// returned from AddTask, for callers that need to JoinTask later from a
// different goroutine than the one that called AddTask.
func IDFromContext(ctx context.Context) (TaskID, bool) {
	tc, ok := fromContext(ctx)
	return tc.id, ok
}

// AddTask schedules fn to run on a worker slot, blocking the caller only
// long enough to acquire a slot if the pool is saturated (the work itself
// runs asynchronously). If ctx was returned by a prior AddTask call or is
// the context passed to a running task's fn, the new task inherits that
// TaskID; otherwise a fresh id
// is minted. The returned context carries the (possibly inherited) task
// id and should be passed to nested AddTask/JoinTask calls made from
// inside fn. fn's error, if any, is surfaced by the JoinTask call that
// waits on this task id (the first reported error wins).
func (tm *TaskManager) AddTask(ctx context.Context, fn func(ctx context.Context) error) (context.Context, error) {
	parent, inherited := fromContext(ctx)

	id := parent.id
	if !inherited {
		id = TaskID(tm.nextID.Add(1))
	}

	tm.mu.Lock()
	g, ok := tm.groups[id]
	if !ok {
		g = &errgroup.Group{}
		tm.groups[id] = g
	}
	tm.mu.Unlock()

	if err := tm.sem.Acquire(ctx, 1); err != nil {
		return ctx, err
	}

	childCtx := context.WithValue(ctx, ctxKey{}, taskContext{
		id: id,
		release: func() {
			tm.sem.Release(1)
		},
		reacq: func(ctx context.Context) error {
			return tm.sem.Acquire(ctx, 1)
		},
	})

	g.Go(func() error {
		defer tm.sem.Release(1)
		return fn(childCtx)
	})

	return context.WithValue(ctx, ctxKey{}, taskContext{id: id}), nil
}

// JoinTask blocks until every task sharing id has completed, including
// ones spawned by those tasks in the meantime, and returns the first
// error any of them reported. If the calling goroutine is itself
// occupying a worker slot under this same context (i.e. it is running
// inside a task), that slot is released for the duration of the wait and
// reacquired before JoinTask returns, so a parent joining its own
// children can never deadlock pool capacity.
func (tm *TaskManager) JoinTask(ctx context.Context, id TaskID) error {
	tm.mu.Lock()
	g, ok := tm.groups[id]
	tm.mu.Unlock()
	if !ok {
		return nil
	}

	if tc, inherited := fromContext(ctx); inherited && tc.id == id && tc.release != nil {
		tc.release()
		err := g.Wait()
		if reacqErr := tc.reacq(ctx); reacqErr != nil {
			return reacqErr
		}
		return err
	}

	return g.Wait()
}
