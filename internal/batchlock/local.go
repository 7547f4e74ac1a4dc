package batchlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
)

// LocalLocker guards batches inside one process. It is used when no redis
// address is configured.
type LocalLocker struct {
	clock clock.Clock

	mu    sync.Mutex
	locks map[string]localLock
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocalLocker(c clock.Clock) *LocalLocker {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &LocalLocker{clock: c, locks: make(map[string]localLock)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := checkLockArgs(key, ttl); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if held, ok := l.locks[key]; ok && now.Before(held.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[key]; ok && held.token == token {
		delete(l.locks, key)
	}
	return nil
}
