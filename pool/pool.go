// Package pool provides a generic object pool for libav objects that must
// be freed explicitly.
package pool

import (
	"runtime"
	"sync"
)

// ReuseMemory may be disabled to hunt use-after-release bugs: with it off
// every Put-ed object is dropped and eventually freed by its finalizer.
var ReuseMemory = true

type Pool[T any] struct {
	pool      sync.Pool
	resetFunc func(*T)
}

func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				v := allocFunc()
				runtime.SetFinalizer(v, freeFunc)
				return v
			},
		},
		resetFunc: resetFunc,
	}
}

func (p *Pool[T]) Get() *T {
	return p.pool.Get().(*T)
}

func (p *Pool[T]) Put(items ...*T) {
	for _, item := range items {
		if item == nil {
			continue
		}
		p.resetFunc(item)
		if !ReuseMemory {
			continue
		}
		p.pool.Put(item)
	}
}
