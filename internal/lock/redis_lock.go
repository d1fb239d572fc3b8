package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

var (
	// ErrNotAcquired возвращается, если блокировку держит другой процесс.
	ErrNotAcquired = errors.New("lock is held by another owner")
	// ErrNotHeld возвращается, если блокировка истекла или принадлежит другому владельцу.
	ErrNotHeld = errors.New("lock is not held")
)

// Option настраивает RedisLocker.
type Option func(*RedisLocker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTokenGenerator задаёт генератор токенов владельца.
func WithTokenGenerator(gen func() string) Option {
	return func(l *RedisLocker) {
		if gen != nil {
			l.newToken = gen
		}
	}
}

// RedisLocker — распределённая блокировка на SET NX с токеном владельца.
type RedisLocker struct {
	client   redis.UniversalClient
	logger   *log.Entry
	newToken func() string
}

// NewRedisLocker создаёт блокировщик поверх клиента redis.
func NewRedisLocker(client redis.UniversalClient, options ...Option) *RedisLocker {
	l := &RedisLocker{
		client:   client,
		logger:   log.WithField("component", "redis-lock"),
		newToken: uuid.NewString,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Lock — захваченная блокировка.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire пытается захватить ключ на ttl. Если ключ занят, возвращает ErrNotAcquired.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock %s: %w", key, ErrNotAcquired)
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// WithLock выполняет fn, удерживая блокировку key. Блокировка снимается после fn
// независимо от результата.
func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	held, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// ctx мог быть отменён, снимаем блокировку отдельным контекстом
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("failed to release lock")
		}
	}()

	return fn(ctx)
}

// Key возвращает ключ блокировки.
func (lk *Lock) Key() string {
	return lk.key
}

// Release снимает блокировку, если она всё ещё принадлежит владельцу.
func (lk *Lock) Release(ctx context.Context) error {
	result, err := lk.client.Eval(ctx, unlockScript, []string{lk.key}, lk.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	if result == int64(0) {
		return fmt.Errorf("release lock %s: %w", lk.key, ErrNotHeld)
	}
	return nil
}

// Extend продлевает блокировку на ttl.
func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := lk.client.Eval(ctx, extendScript, []string{lk.key}, lk.token, fmt.Sprintf("%d", ttl.Milliseconds())).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", lk.key, err)
	}
	if result == int64(0) {
		return fmt.Errorf("extend lock %s: %w", lk.key, ErrNotHeld)
	}
	return nil
}
