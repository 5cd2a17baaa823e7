package loadbalance

import (
	"fmt"
	"sync/atomic"

	"mini-rpc-core/errs"
	"mini-rpc-core/registry"
)

// RoundRobin distributes requests evenly across all candidates in order.
// Uses an atomic counter for lock-free, goroutine-safe operation. The counter
// state only means something if one instance is shared by all callers.
type RoundRobin struct {
	counter atomic.Int64
}

// Select picks counter mod len and stores the successor already reduced
// modulo len, so the counter never wraps and the rotation stays 0..n-1 in order.
func (b *RoundRobin) Select(candidates []registry.ServiceInfo) (registry.ServiceInfo, error) {
	if len(candidates) == 0 {
		return registry.ServiceInfo{}, fmt.Errorf("%w: round robin", errs.ErrNoCandidates)
	}
	n := int64(len(candidates))
	for {
		cur := b.counter.Load()
		idx := floorMod(cur, n)
		if b.counter.CompareAndSwap(cur, (idx+1)%n) {
			return candidates[idx], nil
		}
	}
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}

func floorMod(x, m int64) int64 {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}
