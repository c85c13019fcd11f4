// Package cache stores compiled page bodies keyed by a content-derived key.
//
// Keys are opaque strings built by the compiler from the source path, its
// signature, the configuration signature and the compiler version, so a
// stored value never needs invalidation: a change produces a new key.
package cache

import (
	"context"
	stderrors "errors"
	"sync/atomic"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = stderrors.New("cache closed")

// Store is a byte-valued key/value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Stats counts lookups.
type Stats struct {
	Hits   int64
	Misses int64
}

// Layered consults a fast in-memory store before a persistent one and fills
// the memory store on a persistent hit.
type Layered struct {
	mem     *Memory
	backing Store

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLayered wraps backing (which may be nil) with an in-memory layer.
func NewLayered(backing Store) *Layered {
	return &Layered{mem: NewMemory(), backing: backing}
}

func (l *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, _ := l.mem.Get(ctx, key); ok {
		l.hits.Add(1)
		return v, true, nil
	}
	if l.backing != nil {
		v, ok, err := l.backing.Get(ctx, key)
		if err != nil {
			l.misses.Add(1)
			return nil, false, err
		}
		if ok {
			_ = l.mem.Put(ctx, key, v)
			l.hits.Add(1)
			return v, true, nil
		}
	}
	l.misses.Add(1)
	return nil, false, nil
}

func (l *Layered) Put(ctx context.Context, key string, value []byte) error {
	if err := l.mem.Put(ctx, key, value); err != nil {
		return err
	}
	if l.backing != nil {
		return l.backing.Put(ctx, key, value)
	}
	return nil
}

// Close closes both layers.
func (l *Layered) Close() error {
	err := l.mem.Close()
	if l.backing != nil {
		err = stderrors.Join(err, l.backing.Close())
	}
	return err
}

// Stats returns the lookup counters since creation.
func (l *Layered) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load()}
}
