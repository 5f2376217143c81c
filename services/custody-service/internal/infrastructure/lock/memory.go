package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
)

// MemoryLocker serializes sends per wallet inside one process
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[domain.WalletID]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &MemoryLocker{slots: make(map[domain.WalletID]*slot), wait: wait}
}

// Lock blocks until the wallet is free, the wait elapses or ctx ends
func (l *MemoryLocker) Lock(ctx context.Context, walletID domain.WalletID) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	l.mu.Lock()
	s, ok := l.slots[walletID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[walletID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(walletID, s)
		return nil, fmt.Errorf("%w: %w", domain.ErrWalletBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(walletID, s)
		})
	}, nil
}

func (l *MemoryLocker) release(walletID domain.WalletID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, walletID)
	}
}
