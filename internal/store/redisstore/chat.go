package redisstore

import (
	"context"
	"time"
)

// TurnLock adapts the chat lock primitives to the chat service's locker
// interface with a fixed TTL.
type TurnLock struct {
	Store *Store
	TTL   time.Duration
}

func (l TurnLock) Acquire(ctx context.Context, uid uint64) (bool, error) {
	return l.Store.AcquireChatLock(ctx, uid, l.TTL)
}

func (l TurnLock) Release(ctx context.Context, uid uint64) error {
	return l.Store.ReleaseChatLock(ctx, uid)
}

// SessionCache drops the cached session detail and session list for a user
// after a turn mutates them.
type SessionCache struct {
	Store *Store
}

func (c SessionCache) Invalidate(ctx context.Context, uid, sessionID uint64) error {
	return c.Store.Invalidate(ctx, SessionKey(sessionID), SessionListKey(uid))
}
