package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

func TestRunLeases_AcquireRelease(t *testing.T) {
	mr, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger(), WithLeaseTTL(time.Second))
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", lease.Digest())

	held, err := mr.Get("metanet:run-lease:sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, lease.Holder(), held)
	assert.Equal(t, time.Second, mr.TTL("metanet:run-lease:sha256:abc"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("metanet:run-lease:sha256:abc"))
	assert.Equal(t, ErrLeaseLost, lease.Release(ctx))
}

func TestRunLeases_ContentionNamesHolder(t *testing.T) {
	_, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger(),
		WithLeaseWait(50*time.Millisecond), WithLeasePoll(10*time.Millisecond))
	ctx := context.Background()

	first, err := leases.Acquire(ctx, "digest")
	require.NoError(t, err)

	_, err = leases.Acquire(ctx, "digest")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
	assert.True(t, strings.Contains(err.Error(), first.Holder()), err.Error())

	other, err := leases.Acquire(ctx, "other-digest")
	require.NoError(t, err, "digests are leased independently")
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	second, err := leases.Acquire(ctx, "digest")
	require.NoError(t, err)
	assert.NotEqual(t, first.Holder(), second.Holder())
	require.NoError(t, second.Release(ctx))
}

func TestRunLeases_WaitsForRelease(t *testing.T) {
	_, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger(),
		WithLeaseWait(2*time.Second), WithLeasePoll(10*time.Millisecond))
	ctx := context.Background()

	first, err := leases.Acquire(ctx, "digest")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = first.Release(context.Background())
	}()

	second, err := leases.Acquire(ctx, "digest")
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestRunLeases_CancelledWhileWaiting(t *testing.T) {
	_, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger(), WithLeasePoll(10*time.Millisecond))

	held, err := leases.Acquire(context.Background(), "digest")
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = leases.Acquire(ctx, "digest")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunLeases_TakenOverIsLost(t *testing.T) {
	mr, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger(), WithLeaseTTL(150*time.Millisecond))
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "digest")
	require.NoError(t, err)

	require.NoError(t, mr.Set("metanet:run-lease:digest", "someone-else"))
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, ErrLeaseLost, lease.Release(ctx))
	held, _ := mr.Get("metanet:run-lease:digest")
	assert.Equal(t, "someone-else", held, "release leaves another holder's key alone")
}

func TestRunLeases_RenewedWhileHeld(t *testing.T) {
	mr, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger(), WithLeaseTTL(150*time.Millisecond))
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "digest")
	require.NoError(t, err)

	mr.SetTTL("metanet:run-lease:digest", 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("metanet:run-lease:digest") == 150*time.Millisecond
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, lease.Release(ctx))
}

func TestRunLeases_RedisDown(t *testing.T) {
	mr, client := newMiniredisClient(t)
	leases := NewRunLeases(client, logging.NewNopLogger())
	mr.Close()

	_, err := leases.Acquire(context.Background(), "digest")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}
