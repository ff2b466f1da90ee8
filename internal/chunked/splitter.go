package chunked

import (
	"github.com/rs/zerolog"

	"farmcall/internal/config"
)

// DefaultPageSize is the chunk length used when none is configured
const DefaultPageSize = 50

// Overflow decides what happens to inputs beyond the chunk capacity
type Overflow string

const (
	// OverflowTruncate drops trailing inputs past MaxChunks*PageSize
	OverflowTruncate Overflow = config.OverflowTruncate
	// OverflowExpand keeps every input and opens as many chunks as needed
	OverflowExpand Overflow = config.OverflowExpand
)

// Limits bounds how a list of inputs is chunked
type Limits struct {
	PageSize    int
	MaxChunks   int
	SoftCeiling int
	Overflow    Overflow
}

var (
	// SimpleLimits applies to single-contract lists keyed by pool id
	SimpleLimits = Limits{PageSize: DefaultPageSize, MaxChunks: 6, SoftCeiling: 300, Overflow: OverflowTruncate}
	// ExtendedLimits applies to multi-contract lists such as LP token addresses
	ExtendedLimits = Limits{PageSize: DefaultPageSize, MaxChunks: 14, SoftCeiling: 700, Overflow: OverflowTruncate}
)

// LimitsFromConfig builds the simple and extended limits from configuration
func LimitsFromConfig(cfg config.MulticallConfig) (simple, extended Limits) {
	simple = Limits{
		PageSize:    cfg.PageSize,
		MaxChunks:   cfg.MaxChunks,
		SoftCeiling: cfg.SoftCeiling,
		Overflow:    Overflow(cfg.Overflow),
	}
	extended = Limits{
		PageSize:    cfg.PageSize,
		MaxChunks:   cfg.ExtendedMaxChunks,
		SoftCeiling: cfg.ExtendedSoftCeiling,
		Overflow:    Overflow(cfg.Overflow),
	}
	return simple, extended
}

func (l Limits) pageSize() int {
	if l.PageSize <= 0 {
		return DefaultPageSize
	}
	return l.PageSize
}

// Capacity returns the number of inputs that fit in MaxChunks chunks.
// Zero means unbounded.
func (l Limits) Capacity() int {
	if l.MaxChunks <= 0 {
		return 0
	}
	return l.MaxChunks * l.pageSize()
}

// Split partitions items into ceil(len/pageSize) contiguous chunks. The
// chunks share the backing array of items.
func Split[T any](items []T, pageSize int) [][]T {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	chunks := make([][]T, 0, (len(items)+pageSize-1)/pageSize)
	for start := 0; start < len(items); start += pageSize {
		end := min(start+pageSize, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Plan applies limits to items and splits what remains. It logs a warning
// when the soft ceiling or the chunk capacity is exceeded but never fails.
func Plan[T any](items []T, limits Limits, logger zerolog.Logger) [][]T {
	n := len(items)

	if limits.SoftCeiling > 0 && n > limits.SoftCeiling {
		logger.Warn().
			Int("calls", n).
			Int("ceiling", limits.SoftCeiling).
			Msg("call count exceeds soft ceiling")
	}

	if capacity := limits.Capacity(); capacity > 0 && n > capacity {
		event := logger.Warn().
			Int("calls", n).
			Int("capacity", capacity).
			Int("maxChunks", limits.MaxChunks)
		if limits.Overflow == OverflowExpand {
			event.Msg("call count exceeds chunk capacity, opening extra chunks")
		} else {
			event.Int("dropped", n-capacity).Msg("call count exceeds chunk capacity, dropping trailing calls")
			items = items[:capacity]
		}
	}

	return Split(items, limits.pageSize())
}
