package conversation

import (
	"context"
	"sync"
)

// KeyedLock serializes work per conversation id while letting different
// conversations proceed independently. Each call queues behind the previous
// pending call for the same key (a continuation chain): calls run in
// submission order, and an error or panic in one call never blocks the
// calls queued after it.
type KeyedLock struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{tails: make(map[string]chan struct{})}
}

// Do runs fn once the previous call for key has finished and returns fn's
// error to this caller only. If ctx is cancelled while waiting, Do returns
// ctx.Err() without running fn; the chain stays intact for later callers.
func (l *KeyedLock) Do(ctx context.Context, key string, fn func() error) error {
	done := make(chan struct{})
	l.mu.Lock()
	prev := l.tails[key]
	l.tails[key] = done
	l.mu.Unlock()

	release := func() {
		close(done)
		l.mu.Lock()
		if l.tails[key] == done {
			delete(l.tails, key)
		}
		l.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Hand the slot to the next waiter only after the
			// predecessor finishes, or mutual exclusion breaks.
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn()
}

// Go queues fn behind the previous call for key and runs it on its own
// goroutine. The chain slot is claimed before Go returns, so calls submitted
// in sequence run in that sequence even though the caller does not wait.
func (l *KeyedLock) Go(key string, fn func()) {
	done := make(chan struct{})
	l.mu.Lock()
	prev := l.tails[key]
	l.tails[key] = done
	l.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		defer func() {
			close(done)
			l.mu.Lock()
			if l.tails[key] == done {
				delete(l.tails, key)
			}
			l.mu.Unlock()
		}()
		fn()
	}()
}
