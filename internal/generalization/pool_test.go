package generalization

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
)

func TestFanOut_MergesInTaskOrder(t *testing.T) {
	tasks := []int{5, 1, 4, 2, 3}
	out, err := fanOut(context.Background(), 3, tasks, func(_ context.Context, n int) ([]cluster.Assignment, error) {
		// later tasks finish first
		time.Sleep(time.Duration(6-n) * time.Millisecond)
		return []cluster.Assignment{{ID: cluster.TermID(string(rune('a' + n)))}}, nil
	})
	require.NoError(t, err)

	var got []string
	for _, a := range out {
		got = append(got, a.ID.Value)
	}
	assert.Equal(t, []string{"f", "b", "e", "c", "d"}, got)
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var running, peak int32
	tasks := make([]int, 20)
	_, err := fanOut(context.Background(), 2, tasks, func(context.Context, int) ([]cluster.Assignment, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestFanOut_ReturnsFirstError(t *testing.T) {
	boom := stderrors.New("boom")
	out, err := fanOut(context.Background(), 0, []int{1, 2, 3}, func(_ context.Context, n int) ([]cluster.Assignment, error) {
		if n == 2 {
			return nil, boom
		}
		return []cluster.Assignment{{ID: cluster.TermID("x")}}, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestFanOut_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	_, err := fanOut(ctx, 1, []int{1, 2}, func(context.Context, int) ([]cluster.Assignment, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFanOut_NoTasks(t *testing.T) {
	out, err := fanOut(context.Background(), 4, []int(nil), func(context.Context, int) ([]cluster.Assignment, error) {
		t.Fatal("unexpected call")
		return nil, nil
	})
	assert.NoError(t, err)
	assert.Empty(t, out)
}
