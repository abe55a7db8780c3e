// Package leaselock provides expiring, renewed locks stored in PostgreSQL.
// A lock held by a crashed process frees itself once its lease expires.
//
// The server uses it to serialize concept creation per branch, so two
// reviewers committing overlapping products cannot both create the same
// missing concept.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

const (
	renewAttempts  = 3
	renewTimeout   = 15 * time.Second
	releaseTimeout = 5 * time.Second
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tune a Client. Zero values fall back to a 2 minute TTL renewed
// every minute, polling every 250ms while waiting.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

func (o Options) normalize() Options {
	if o.TTL <= 0 {
		o.TTL = 2 * time.Minute
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

// Client hands out leases on the materialize_locks table.
type Client struct {
	db   dbConn
	opts Options
}

func New(db dbConn, opts Options) *Client {
	return &Client{db: db, opts: opts.normalize()}
}

// Lease is a held lock. Context is cancelled when the lease is released or
// lost; context.Cause reports ErrLost in the latter case.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	client *Client
	cancel context.CancelCauseFunc
	once   sync.Once
	done   chan struct{}
}

// Lock runs fn while holding the lease on key. fn receives the lease
// context, so work stops once renewal fails.
func (c *Client) Lock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Release()

	if err := fn(lease.Context); err != nil {
		if cause := context.Cause(lease.Context); errors.Is(cause, ErrLost) {
			return errors.Join(err, cause)
		}
		return err
	}
	return nil
}

// Acquire takes the lease on key. Without Options.Wait a held lease returns
// ErrBusy immediately; with it, Acquire polls until ctx is done.
func (c *Client) Acquire(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := c.opts.TokenPrefix + id

	start := time.Now()
	waited := false
	for {
		ok, err := c.tryAcquire(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !c.opts.Wait {
			return nil, ErrBusy
		}
		if !waited {
			logger.Debug("[Lock] Waiting for lease", "key", key)
			waited = true
		}
		if err := sleep(ctx, c.opts.WaitInterval, c.opts.WaitJitter); err != nil {
			return nil, err
		}
	}
	if waited {
		logger.Debug("[Lock] Acquired lease after waiting", "key", key, "waited", time.Since(start))
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.keepAlive()
	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, token, c.opts.TTL.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "", nil
}

// PurgeExpired removes leases whose holders never released them.
func (c *Client) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := c.db.Exec(ctx, purgeExpiredSQL)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Release stops renewal and deletes the lease. It is safe to call twice.
func (l *Lease) Release() {
	l.once.Do(func() {
		close(l.done)
		l.cancel(context.Canceled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token); err != nil {
		logger.Warn("[Lock] Failed to release lease, it expires on its own", "key", l.Key, "err", err)
	}
}

func (l *Lease) keepAlive() {
	t := time.NewTicker(l.client.opts.RenewEvery)
	defer t.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(); err != nil {
				if l.Context.Err() != nil {
					return
				}
				logger.Error("[Lock] Lost lease", "key", l.Key, "err", err)
				l.cancel(ErrLost)
				return
			}
		}
	}
}

func (l *Lease) renew() error {
	_, err := util.RetryIfWithContext(l.Context, renewAttempts, func(err error) bool {
		return !errors.Is(err, pgx.ErrNoRows)
	}, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, renewTimeout)
		defer cancel()
		var got string
		err := l.client.db.QueryRow(ctx, renewSQL, l.Key, l.Token, l.client.opts.TTL.Milliseconds()).Scan(&got)
		return got, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLost
	}
	return err
}

func sleep(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const tryAcquireSQL = `
INSERT INTO materialize_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE materialize_locks.expires_at < now()
   OR materialize_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE materialize_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM materialize_locks
WHERE lock_key = $1 AND locked_by = $2;
`

const purgeExpiredSQL = `
DELETE FROM materialize_locks
WHERE expires_at < now();
`
