package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	"github.com/quangdang46/DeFi-Wallet/shared/redis"
)

const (
	DefaultLockTTL      = 30 * time.Second
	DefaultLockWait     = 10 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// Store is the subset of shared/redis the locker needs
type Store interface {
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

var _ Store = (*redis.Redis)(nil)

// RedisLocker serializes sends per wallet across replicas. The lock expires
// after TTL so a crashed holder cannot block the wallet forever.
type RedisLocker struct {
	store  Store
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *logging.Logger
}

func NewRedisLocker(store Store, ttl, wait time.Duration, logger *logging.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if wait <= 0 {
		wait = DefaultLockWait
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisLocker{store: store, ttl: ttl, wait: wait, poll: defaultPollInterval, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, walletID domain.WalletID) (func(), error) {
	key := redis.WalletLockKey(walletID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrWalletBusy, ctx.Err())
			}
			return nil, fmt.Errorf("acquire wallet lock: %w", err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrWalletBusy, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlocker(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		released, err := l.store.DeleteIfValue(ctx, key, token)
		if err != nil {
			l.logger.WithError(err).WithField("lock_key", key).Warn("failed to release wallet lock")
			return
		}
		if !released {
			l.logger.WithField("lock_key", key).Warn("wallet lock expired before release")
		}
	}
}
