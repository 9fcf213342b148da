package redis

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const (
	defaultLeaseTTL  = 30 * time.Second
	defaultLeaseWait = time.Minute
	defaultLeasePoll = 100 * time.Millisecond
)

// ErrLeaseLost is returned by Release when the lease expired or was taken
// over before it was released.
var ErrLeaseLost = errors.New(errors.ErrCodeConflict, "run lease no longer held")

// Lease is a claim on generalizing one network digest. It is renewed in the
// background until Release.
type Lease interface {
	Digest() string
	Holder() string
	Release(ctx context.Context) error
}

// RunLeases hands out digest leases so that only one worker across the
// fleet generalizes a given input at a time.
type RunLeases interface {
	Acquire(ctx context.Context, digest string) (Lease, error)
}

type LeaseOption func(*runLeases)

// WithLeaseTTL sets how long a lease survives without renewal.
func WithLeaseTTL(ttl time.Duration) LeaseOption {
	return func(l *runLeases) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLeaseWait bounds how long Acquire waits for another holder.
func WithLeaseWait(wait time.Duration) LeaseOption {
	return func(l *runLeases) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

func WithLeasePoll(poll time.Duration) LeaseOption {
	return func(l *runLeases) {
		if poll > 0 {
			l.poll = poll
		}
	}
}

type runLeases struct {
	client *Client
	log    logging.Logger
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	host   string
}

// NewRunLeases returns RunLeases stored under <prefix>run-lease:<digest>.
func NewRunLeases(client *Client, log logging.Logger, opts ...LeaseOption) RunLeases {
	if log == nil {
		log = logging.NewNopLogger()
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	l := &runLeases{
		client: client,
		log:    log.Named("run_lease"),
		ttl:    defaultLeaseTTL,
		wait:   defaultLeaseWait,
		poll:   defaultLeasePoll,
		host:   host,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// releaseLease and renewLease only touch the key while it still carries
// the caller's holder token.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (l *runLeases) key(digest string) string {
	return l.client.Key("run-lease", digest)
}

// Acquire polls until the digest is free, the wait budget runs out or ctx
// is done. Contention ends in an ErrCodeConflict naming the current holder;
// Redis failures are ErrCodeCacheError.
func (l *runLeases) Acquire(ctx context.Context, digest string) (Lease, error) {
	key := l.key(digest)
	holder := l.host + "/" + uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, holder, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to claim run lease")
		}
		if ok {
			lease := &runLease{owner: l, key: key, digest: digest, holder: holder}
			lease.startRenewal()
			l.log.Debug("Run lease acquired", logging.String("digest", digest), logging.String("holder", holder))
			return lease, nil
		}
		if !time.Now().Before(deadline) {
			current, _ := l.client.Get(ctx, key).Result()
			return nil, errors.Newf(errors.ErrCodeConflict, "run lease for %s held by %s", digest, current)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

type runLease struct {
	owner  *runLeases
	key    string
	digest string
	holder string

	cancel context.CancelFunc
	done   chan struct{}
}

func (r *runLease) Digest() string { return r.digest }
func (r *runLease) Holder() string { return r.holder }

func (r *runLease) startRenewal() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.renew(ctx)
}

// renew extends the lease every third of its TTL and stops once it is lost.
func (r *runLease) renew(ctx context.Context) {
	defer close(r.done)
	ttl := r.owner.ttl
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewLease.Run(ctx, r.owner.client.GetUnderlyingClient(), []string{r.key}, r.holder, ttl.Milliseconds()).Int64()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				r.owner.log.Warn("Failed to renew run lease", logging.String("digest", r.digest), logging.Err(err))
				continue
			}
			if n == 0 {
				r.owner.log.Warn("Run lease lost", logging.String("digest", r.digest), logging.String("holder", r.holder))
				return
			}
		}
	}
}

// Release stops renewal and deletes the key if this lease still holds it.
// Calling it twice returns ErrLeaseLost.
func (r *runLease) Release(ctx context.Context) error {
	r.cancel()
	<-r.done

	n, err := releaseLease.Run(ctx, r.owner.client.GetUnderlyingClient(), []string{r.key}, r.holder).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release run lease")
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}
