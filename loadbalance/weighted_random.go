package loadbalance

import (
	"fmt"
	"math/rand/v2"

	"mini-rpc-core/errs"
	"mini-rpc-core/registry"
)

// WeightedRandom picks a candidate with probability proportional to its weight.
type WeightedRandom struct{}

// Select draws r in [0, total) and walks the candidates subtracting weights;
// the first candidate that takes r below zero wins.
func (b *WeightedRandom) Select(candidates []registry.ServiceInfo) (registry.ServiceInfo, error) {
	if len(candidates) == 0 {
		return registry.ServiceInfo{}, fmt.Errorf("%w: weighted random", errs.ErrNoCandidates)
	}

	total := 0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return registry.ServiceInfo{}, fmt.Errorf("%w: total weight %d", errs.ErrInvalidWeights, total)
	}

	r := rand.IntN(total)
	for _, c := range candidates {
		r -= c.Weight
		if r < 0 {
			return c, nil
		}
	}
	// Unreachable with positive weights; negative ones can leave r >= 0.
	return candidates[len(candidates)-1], nil
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}
