package loadbalance

import (
	"fmt"
	"math/rand/v2"

	"mini-rpc-core/errs"
	"mini-rpc-core/registry"
)

// Random picks a candidate uniformly.
type Random struct{}

// Select returns ErrNoCandidates for an empty list.
func (b *Random) Select(candidates []registry.ServiceInfo) (registry.ServiceInfo, error) {
	if len(candidates) == 0 {
		return registry.ServiceInfo{}, fmt.Errorf("%w: random", errs.ErrNoCandidates)
	}
	return candidates[rand.IntN(len(candidates))], nil
}

func (b *Random) Name() string {
	return "Random"
}
