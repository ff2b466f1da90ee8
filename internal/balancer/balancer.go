package balancer

import (
	"sync"

	"farmcall/internal/upstream"
)

// WeightedRoundRobin implements weighted round-robin load balancing
type WeightedRoundRobin struct {
	provider      UpstreamProvider
	mu            sync.Mutex
	currentIndex  int
	currentWeight int
}

// NewWeightedRoundRobin creates a new WeightedRoundRobin balancer
func NewWeightedRoundRobin(provider UpstreamProvider) *WeightedRoundRobin {
	return &WeightedRoundRobin{
		provider:     provider,
		currentIndex: -1,
	}
}

// Next returns the next upstream using weighted round-robin.
// Main upstreams are preferred; fallbacks are used only when no main one remains.
func (wrr *WeightedRoundRobin) Next(exclude map[string]bool) *upstream.Upstream {
	wrr.mu.Lock()
	defer wrr.mu.Unlock()

	upstreams := wrr.getAvailable(exclude)
	if len(upstreams) == 0 {
		return nil
	}
	if len(upstreams) == 1 {
		return upstreams[0]
	}

	step := gcdWeights(upstreams)
	top := maxWeight(upstreams)

	// the candidate set can shrink between calls
	if wrr.currentIndex >= len(upstreams) {
		wrr.currentIndex = -1
	}

	for {
		wrr.currentIndex = (wrr.currentIndex + 1) % len(upstreams)

		if wrr.currentIndex == 0 {
			wrr.currentWeight -= step
			if wrr.currentWeight <= 0 {
				wrr.currentWeight = top
			}
		}

		u := upstreams[wrr.currentIndex]
		if u.Weight() >= wrr.currentWeight {
			return u
		}
	}
}

func (wrr *WeightedRoundRobin) getAvailable(exclude map[string]bool) []*upstream.Upstream {
	main := filterExcluded(wrr.provider.GetHealthyMain(), exclude)
	if len(main) > 0 {
		return main
	}
	return filterExcluded(wrr.provider.GetHealthyFallback(), exclude)
}

func filterExcluded(upstreams []*upstream.Upstream, exclude map[string]bool) []*upstream.Upstream {
	if len(exclude) == 0 {
		return upstreams
	}

	result := make([]*upstream.Upstream, 0, len(upstreams))
	for _, u := range upstreams {
		if !exclude[u.Name()] {
			result = append(result, u)
		}
	}
	return result
}

func gcdWeights(upstreams []*upstream.Upstream) int {
	result := upstreams[0].Weight()
	for i := 1; i < len(upstreams); i++ {
		result = gcd(result, upstreams[i].Weight())
	}
	return result
}

func maxWeight(upstreams []*upstream.Upstream) int {
	top := 0
	for _, u := range upstreams {
		if u.Weight() > top {
			top = u.Weight()
		}
	}
	return top
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
