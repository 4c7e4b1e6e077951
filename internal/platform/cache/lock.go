package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("platform/cache: lock held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out Redis-backed mutual exclusion keyed by name.
type Locker struct {
	client redis.Scripter
	cmd    redis.Cmdable
}

// NewLocker constructs a Locker on top of client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, cmd: client}
}

// Lock is a held lock.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the lock at key for ttl or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.cmd.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

// Release frees the lock if it is still owned by this holder.
func (k *Lock) Release(ctx context.Context) error {
	if k == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, k.locker.client, []string{k.key}, k.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("platform/cache: release %s: %w", k.key, err)
	}
	return nil
}

// MarkDone records that the work named by key has completed. The marker expires
// after ttl.
func (l *Locker) MarkDone(ctx context.Context, key string, ttl time.Duration) error {
	if err := l.cmd.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: mark %s done: %w", key, err)
	}
	return nil
}

// Done reports whether a completion marker exists at key.
func (l *Locker) Done(ctx context.Context, key string) (bool, error) {
	n, err := l.cmd.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: check %s: %w", key, err)
	}
	return n > 0, nil
}

// TransitionLockKey builds the key guarding one daily transition run.
func TransitionLockKey(referenceDate time.Time) string {
	return fmt.Sprintf("servicechange:transition:%s:lock", referenceDate.Format("2006-01-02"))
}

// TransitionDoneKey builds the key marking a reference date as already transitioned.
func TransitionDoneKey(referenceDate time.Time) string {
	return fmt.Sprintf("servicechange:transition:%s:done", referenceDate.Format("2006-01-02"))
}
