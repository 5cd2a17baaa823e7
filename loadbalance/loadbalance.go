// Package loadbalance selects one provider instance among the discovered candidates.
//
// Three strategies are implemented:
//   - Random:          uniform choice
//   - RoundRobin:      strict rotation over a process-wide counter
//   - WeightedRandom:  choice proportional to ServiceInfo.Weight
package loadbalance

import (
	"mini-rpc-core/registry"
	"mini-rpc-core/spi"
)

// LoadBalancer is called once per attempt with a non-empty candidate list.
// Implementations must be goroutine-safe.
type LoadBalancer interface {
	Select(candidates []registry.ServiceInfo) (registry.ServiceInfo, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

func init() {
	spi.RegisterFactory("loadbalance.Random", func() any { return &Random{} })
	spi.RegisterFactory("loadbalance.RoundRobin", func() any { return &RoundRobin{} })
	spi.RegisterFactory("loadbalance.WeightedRandom", func() any { return &WeightedRandom{} })
}
