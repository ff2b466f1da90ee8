package balancer

import "farmcall/internal/upstream"

// Selector picks the next upstream, skipping names in exclude
type Selector interface {
	Next(exclude map[string]bool) *upstream.Upstream
}

// UpstreamProvider provides access to upstreams
type UpstreamProvider interface {
	// GetHealthyMain returns selectable main upstreams
	GetHealthyMain() []*upstream.Upstream

	// GetHealthyFallback returns selectable fallback upstreams
	GetHealthyFallback() []*upstream.Upstream
}
