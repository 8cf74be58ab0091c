package persist

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrStoreUnavailable = errors.New("persist: log store unavailable")

// LazyPersister forwards to a persister attached after startup. Until Set is
// called every write fails with ErrStoreUnavailable, which the dispatcher
// logs like any other write failure.
type LazyPersister struct {
	target atomic.Pointer[Persister]
}

func (l *LazyPersister) Set(p Persister) {
	l.target.Store(&p)
}

func (l *LazyPersister) Ready() bool {
	return l.target.Load() != nil
}

func (l *LazyPersister) Persist(ctx context.Context, rec Record) error {
	p := l.target.Load()
	if p == nil {
		return ErrStoreUnavailable
	}
	return (*p).Persist(ctx, rec)
}
