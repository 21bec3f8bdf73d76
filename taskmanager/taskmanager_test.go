package taskmanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJoinOwnTaskIDWaitsForChildren(t *testing.T) {
	tm := New(2)

	var ran atomic.Bool
	var grandchildRan atomic.Bool

	ctx, err := tm.AddTask(context.Background(), func(ctx context.Context) error {
		childCtx, err := tm.AddTask(ctx, func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)

			_, err := tm.AddTask(ctx, func(ctx context.Context) error {
				grandchildRan.Store(true)
				return nil
			})
			require.NoError(t, err)

			tc, ok := fromContext(ctx)
			require.True(t, ok)
			require.NoError(t, tm.JoinTask(ctx, tc.id))

			ran.Store(true)
			return nil
		})
		require.NoError(t, err)

		tc, ok := fromContext(childCtx)
		require.True(t, ok)
		return tm.JoinTask(childCtx, tc.id)
	})
	require.NoError(t, err)

	tc, ok := fromContext(ctx)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		require.NoError(t, tm.JoinTask(context.Background(), tc.id))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("JoinTask deadlocked")
	}

	require.True(t, ran.Load())
	require.True(t, grandchildRan.Load())
}

func TestAddTaskSaturatedPoolQueues(t *testing.T) {
	tm := New(1)

	var order []int
	done := make(chan struct{})

	ctx1, err := tm.AddTask(context.Background(), func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		order = append(order, 1)
		return nil
	})
	require.NoError(t, err)

	ctx2, err := tm.AddTask(context.Background(), func(ctx context.Context) error {
		order = append(order, 2)
		close(done)
		return nil
	})
	require.NoError(t, err)

	tc1, _ := fromContext(ctx1)
	tc2, _ := fromContext(ctx2)
	require.NoError(t, tm.JoinTask(context.Background(), tc1.id))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second task never ran")
	}
	require.NoError(t, tm.JoinTask(context.Background(), tc2.id))

	require.Equal(t, []int{1, 2}, order)
}

func TestJoinTaskReturnsFirstTaskError(t *testing.T) {
	tm := New(4)
	boom := errors.New("boom")

	ctx, err := tm.AddTask(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.NoError(t, err)

	tc, ok := fromContext(ctx)
	require.True(t, ok)
	require.ErrorIs(t, tm.JoinTask(context.Background(), tc.id), boom)
}
