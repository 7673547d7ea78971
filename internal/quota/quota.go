// Package quota provides atomic shared counters for per-host and per-API-key
// request budgets. Counters are shared across concurrent competitor runs;
// check-and-increment is lock-free so unrelated runs never serialize on
// each other.
package quota

import (
	"sync"
	"sync/atomic"
)

// Counter tracks named usage counts with atomic check-and-increment.
type Counter struct {
	counts sync.Map // string -> *int64
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) slot(key string) *int64 {
	if v, ok := c.counts.Load(key); ok {
		return v.(*int64)
	}
	v, _ := c.counts.LoadOrStore(key, new(int64))
	return v.(*int64)
}

// TryAcquire atomically consumes one unit of the key's budget. It returns
// false, without consuming, once limit is reached. A limit <= 0 means
// unlimited.
func (c *Counter) TryAcquire(key string, limit int64) bool {
	if limit <= 0 {
		atomic.AddInt64(c.slot(key), 1)
		return true
	}
	slot := c.slot(key)
	for {
		cur := atomic.LoadInt64(slot)
		if cur >= limit {
			return false
		}
		if atomic.CompareAndSwapInt64(slot, cur, cur+1) {
			return true
		}
	}
}

// Used returns the current count for a key.
func (c *Counter) Used(key string) int64 {
	if v, ok := c.counts.Load(key); ok {
		return atomic.LoadInt64(v.(*int64))
	}
	return 0
}
