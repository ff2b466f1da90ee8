package upstream

import (
	"github.com/rs/zerolog"

	"farmcall/internal/config"
)

// Pool holds the configured upstreams. The set is fixed after construction.
type Pool struct {
	upstreams []*Upstream
	logger    zerolog.Logger
}

// NewPool creates a new Pool from the upstream configuration
func NewPool(cfg *config.Config, logger zerolog.Logger) *Pool {
	poolLogger := logger.With().Str("component", "pool").Logger()

	upstreams := make([]*Upstream, 0, len(cfg.Upstreams))
	for _, upCfg := range cfg.Upstreams {
		upstreams = append(upstreams, NewUpstreamFromConfig(upCfg, cfg, poolLogger))
	}

	return NewPoolFromUpstreams(upstreams, poolLogger)
}

// NewPoolFromUpstreams wraps already constructed upstreams
func NewPoolFromUpstreams(upstreams []*Upstream, logger zerolog.Logger) *Pool {
	return &Pool{
		upstreams: upstreams,
		logger:    logger,
	}
}

// Close closes all upstream connections
func (p *Pool) Close() {
	for _, u := range p.upstreams {
		u.Close()
	}
	p.logger.Info().Msg("pool closed")
}

// GetAll returns all upstreams
func (p *Pool) GetAll() []*Upstream {
	result := make([]*Upstream, len(p.upstreams))
	copy(result, p.upstreams)
	return result
}

// GetHealthyMain returns selectable main upstreams
func (p *Pool) GetHealthyMain() []*Upstream {
	result := make([]*Upstream, 0, len(p.upstreams))
	for _, u := range p.upstreams {
		if u.IsMain() && u.IsSelectable() {
			result = append(result, u)
		}
	}
	return result
}

// GetHealthyFallback returns selectable fallback upstreams
func (p *Pool) GetHealthyFallback() []*Upstream {
	result := make([]*Upstream, 0, len(p.upstreams))
	for _, u := range p.upstreams {
		if u.IsFallback() && u.IsSelectable() {
			result = append(result, u)
		}
	}
	return result
}

// GetWithWS returns upstreams that have WebSocket configured
func (p *Pool) GetWithWS() []*Upstream {
	result := make([]*Upstream, 0)
	for _, u := range p.upstreams {
		if u.HasWS() {
			result = append(result, u)
		}
	}
	return result
}

// GetByName returns an upstream by name
func (p *Pool) GetByName(name string) *Upstream {
	for _, u := range p.upstreams {
		if u.Name() == name {
			return u
		}
	}
	return nil
}

// HasHealthyUpstreams returns true if at least one upstream is healthy
func (p *Pool) HasHealthyUpstreams() bool {
	for _, u := range p.upstreams {
		if u.IsHealthy() {
			return true
		}
	}
	return false
}

// GetHealthyCount returns the number of healthy upstreams
func (p *Pool) GetHealthyCount() int {
	count := 0
	for _, u := range p.upstreams {
		if u.IsHealthy() {
			count++
		}
	}
	return count
}
