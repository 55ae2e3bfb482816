package distributed

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/gopool/pkg/common/errors"
	"github.com/vnykmshr/gopool/pkg/common/validation"
)

// Semaphore is a counting semaphore shared by every process that opens the
// same Redis key. It has the same Acquire/Release contract as the in-process
// semaphore; blocking calls take a context because they cross the network.
type Semaphore interface {
	// Acquire blocks until a permit is available or ctx is done.
	Acquire(ctx context.Context) error

	// TryAcquire takes a permit if one is available without blocking.
	TryAcquire(ctx context.Context) (bool, error)

	// Release returns a permit to the shared pool and wakes one waiter
	// in any process. Like the in-process semaphore there is no upper bound.
	Release(ctx context.Context) error

	// Count returns the number of permits currently available.
	Count(ctx context.Context) (int, error)

	// Held returns the number of permits this instance currently holds.
	Held() int

	// Stats returns a snapshot of the shared semaphore.
	Stats(ctx context.Context) (*Stats, error)

	// Reset discards the shared state and restores the initial permits.
	Reset(ctx context.Context) error

	// Close returns every permit this instance still holds.
	Close() error
}

// Stats holds distributed semaphore statistics.
type Stats struct {
	Initial    int
	Available  int
	Held       int
	InstanceID string
}

// Config holds configuration for a distributed semaphore.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key is the Redis key prefix for this semaphore
	Key string

	// Initial is the number of permits created the first time the key is used.
	// Later instances opening the same key keep the existing state.
	Initial int

	// InstanceID uniquely identifies this application instance
	InstanceID string

	// RedisTimeout bounds every non-blocking Redis operation
	RedisTimeout time.Duration

	// PollInterval is the longest a single blocking pop waits before Acquire
	// re-checks its context (defaults to 1s)
	PollInterval time.Duration

	// Logger receives acquire/release debug records. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultConfig returns a default distributed semaphore configuration.
func DefaultConfig() Config {
	return Config{
		InstanceID:   generateInstanceID(),
		RedisTimeout: 500 * time.Millisecond,
		PollInterval: time.Second,
	}
}

type redisSemaphore struct {
	config Config
	keys   keys
	logger *slog.Logger
	held   atomic.Int64
	closed atomic.Bool

	// set once the server has rejected a fractional BLPOP timeout
	noFloatTimeout atomic.Bool

	initScript  *redis.Script
	resetScript *redis.Script
}

// New opens the semaphore at config.Key, creating it with config.Initial
// permits if it does not exist yet.
func New(ctx context.Context, config Config) (Semaphore, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rs := &redisSemaphore{
		config: config,
		keys:   redisKeys(config.Key),
		logger: logger.With("semaphore", config.Key, "instance", config.InstanceID),

		// Lua scripts keep check-and-fill atomic across instances
		initScript:  redis.NewScript(luaInit),
		resetScript: redis.NewScript(luaReset),
	}

	if err := rs.initialize(ctx); err != nil {
		return nil, err
	}
	return rs, nil
}

func validateConfig(config Config) error {
	if err := validation.ValidateNotNil("distributed", "Redis", config.Redis); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("distributed", "Key", config.Key); err != nil {
		return err
	}
	return validation.ValidateNonNegativeInt("distributed", "Initial", config.Initial)
}

func applyConfigDefaults(config Config) Config {
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.RedisTimeout <= 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return config
}

func (rs *redisSemaphore) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rs.config.RedisTimeout)
	defer cancel()

	created, err := rs.initScript.Run(ctx, rs.config.Redis,
		[]string{rs.keys.initial, rs.keys.permits}, rs.config.Initial).Int()
	if err != nil {
		return gferrors.NewOperationError("distributed", "initialize", err).WithContext(rs.config.Key)
	}

	if created == 1 {
		rs.logger.Debug("semaphore created", "initial", rs.config.Initial)
	}
	return nil
}

func (rs *redisSemaphore) Acquire(ctx context.Context) error {
	if rs.closed.Load() {
		return gferrors.ErrClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := rs.config.PollInterval
		if deadline, ok := ctx.Deadline(); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return context.DeadlineExceeded
			}
			if remaining < wait {
				wait = remaining
			}
		}
		// BLPOP treats 0 as "forever"
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		err := rs.pop(ctx, wait)
		switch {
		case err == nil:
			rs.held.Add(1)
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return gferrors.NewOperationError("distributed", "acquire", err).WithContext(rs.config.Key)
		}
	}
}

// pop blocks for at most wait on the permits list. go-redis rounds BLPOP
// timeouts to whole seconds, so shorter waits send the timeout as a float
// (Redis 6+). Servers that reject it get an LPOP poll for the same wait.
func (rs *redisSemaphore) pop(ctx context.Context, wait time.Duration) error {
	if wait >= time.Second {
		return rs.config.Redis.BLPop(ctx, wait.Truncate(time.Second), rs.keys.permits).Err()
	}

	if !rs.noFloatTimeout.Load() {
		timeout := strconv.FormatFloat(wait.Seconds(), 'f', 3, 64)
		err := rs.config.Redis.Do(ctx, "BLPOP", rs.keys.permits, timeout).Err()
		if err == nil || !isTimeoutArgError(err) {
			return err
		}
		rs.noFloatTimeout.Store(true)
		rs.logger.Debug("server rejects fractional BLPOP timeout, polling instead")
	}

	return rs.pollPop(ctx, wait)
}

// pollPop retries LPOP until a permit appears or wait elapses, returning
// redis.Nil on timeout like BLPOP does.
func (rs *redisSemaphore) pollPop(ctx context.Context, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	tick := wait / 10
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		err := rs.config.Redis.LPop(ctx, rs.keys.permits).Err()
		if !errors.Is(err, redis.Nil) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return redis.Nil
		case <-ticker.C:
		}
	}
}

func isTimeoutArgError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.Contains(strings.ToLower(rerr.Error()), "timeout")
}

func (rs *redisSemaphore) TryAcquire(ctx context.Context) (bool, error) {
	if rs.closed.Load() {
		return false, gferrors.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, rs.config.RedisTimeout)
	defer cancel()

	err := rs.config.Redis.LPop(ctx, rs.keys.permits).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, gferrors.NewOperationError("distributed", "try_acquire", err).WithContext(rs.config.Key)
	}

	rs.held.Add(1)
	return true, nil
}

func (rs *redisSemaphore) Release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rs.config.RedisTimeout)
	defer cancel()

	if err := rs.config.Redis.RPush(ctx, rs.keys.permits, permitToken).Err(); err != nil {
		return gferrors.NewOperationError("distributed", "release", err).WithContext(rs.config.Key)
	}

	// Releasing more than this instance acquired is allowed; held floors at 0.
	for {
		n := rs.held.Load()
		if n == 0 || rs.held.CompareAndSwap(n, n-1) {
			break
		}
	}
	return nil
}

func (rs *redisSemaphore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.config.RedisTimeout)
	defer cancel()

	n, err := rs.config.Redis.LLen(ctx, rs.keys.permits).Result()
	if err != nil {
		return 0, gferrors.NewOperationError("distributed", "count", err).WithContext(rs.config.Key)
	}
	return int(n), nil
}

func (rs *redisSemaphore) Held() int {
	return int(rs.held.Load())
}

func (rs *redisSemaphore) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.config.RedisTimeout)
	defer cancel()

	pipe := rs.config.Redis.Pipeline()
	initial := pipe.Get(ctx, rs.keys.initial)
	available := pipe.LLen(ctx, rs.keys.permits)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, gferrors.NewOperationError("distributed", "stats", err).WithContext(rs.config.Key)
	}

	stats := &Stats{
		Available:  int(available.Val()),
		Held:       rs.Held(),
		InstanceID: rs.config.InstanceID,
	}
	if n, err := initial.Int(); err == nil {
		stats.Initial = n
	}
	return stats, nil
}

func (rs *redisSemaphore) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rs.config.RedisTimeout)
	defer cancel()

	err := rs.resetScript.Run(ctx, rs.config.Redis,
		[]string{rs.keys.initial, rs.keys.permits}, rs.config.Initial).Err()
	if err != nil {
		return gferrors.NewOperationError("distributed", "reset", err).WithContext(rs.config.Key)
	}

	rs.held.Store(0)
	return nil
}

func (rs *redisSemaphore) Close() error {
	if !rs.closed.CompareAndSwap(false, true) {
		return nil
	}

	held := rs.held.Load()
	for i := int64(0); i < held; i++ {
		if err := rs.Release(context.Background()); err != nil {
			return err
		}
	}
	if held > 0 {
		rs.logger.Debug("returned held permits on close", "permits", held)
	}
	return nil
}

// keys holds the Redis keys backing one semaphore.
type keys struct {
	initial string
	permits string
}

func redisKeys(prefix string) keys {
	return keys{
		initial: prefix + ":initial",
		permits: prefix + ":permits",
	}
}

// generateInstanceID creates a unique identifier for this application instance.
func generateInstanceID() string {
	return uuid.NewString()
}

const permitToken = "1"

// luaInit creates the permit list once. KEYS[1] records the initial count and
// doubles as the "already created" marker.
const luaInit = `
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('DEL', KEYS[2])
for i = 1, tonumber(ARGV[1]) do
	redis.call('RPUSH', KEYS[2], '1')
end
return 1
`

const luaReset = `
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('SET', KEYS[1], ARGV[1])
for i = 1, tonumber(ARGV[1]) do
	redis.call('RPUSH', KEYS[2], '1')
end
return 1
`
