package chunked

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		items    []string
		pageSize int
		want     [][]string
	}{
		{
			name:     "uneven tail",
			items:    []string{"A", "B", "C", "D", "E", "F", "G"},
			pageSize: 3,
			want:     [][]string{{"A", "B", "C"}, {"D", "E", "F"}, {"G"}},
		},
		{
			name:     "exact multiple",
			items:    []string{"A", "B", "C", "D"},
			pageSize: 2,
			want:     [][]string{{"A", "B"}, {"C", "D"}},
		},
		{
			name:     "empty input",
			items:    nil,
			pageSize: 3,
			want:     [][]string{},
		},
		{
			name:     "default page size",
			items:    []string{"A", "B"},
			pageSize: 0,
			want:     [][]string{{"A", "B"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.items, tt.pageSize)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d chunks, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if !slices.Equal(got[i], tt.want[i]) {
					t.Errorf("chunk %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
			if joined := slices.Concat(got...); !slices.Equal(joined, tt.items) && len(tt.items) > 0 {
				t.Errorf("concatenated chunks %v differ from input %v", joined, tt.items)
			}
		})
	}
}

func TestSplitChunkAppendDoesNotClobberNext(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := Split(items, 2)
	_ = append(chunks[0], 99)
	if chunks[1][0] != 3 {
		t.Errorf("append to first chunk overwrote the second: %v", chunks[1])
	}
}

func TestPlanTruncates(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	chunks := Plan(items, Limits{PageSize: 3, MaxChunks: 2, SoftCeiling: 5}, logger)

	if got := slices.Concat(chunks...); !slices.Equal(got, items[:6]) {
		t.Errorf("expected first six items in order, got %v", got)
	}
	if n := strings.Count(buf.String(), "dropping trailing calls"); n != 1 {
		t.Errorf("expected one capacity warning, got %d", n)
	}
	if n := strings.Count(buf.String(), "soft ceiling"); n != 1 {
		t.Errorf("expected one soft ceiling warning, got %d", n)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Error("capacity problems must log at warn level")
	}
}

func TestPlanExpandKeepsEverything(t *testing.T) {
	var buf bytes.Buffer
	items := make([]int, 10)

	chunks := Plan(items, Limits{PageSize: 3, MaxChunks: 2, Overflow: OverflowExpand}, zerolog.New(&buf))

	if len(chunks) != 4 {
		t.Errorf("expected 4 chunks, got %d", len(chunks))
	}
	if !strings.Contains(buf.String(), "opening extra chunks") {
		t.Error("expected capacity warning in expand mode")
	}
}

func TestPlanWithinLimitsIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	chunks := Plan(make([]int, 300), SimpleLimits, zerolog.New(&buf))

	if len(chunks) != 6 {
		t.Errorf("expected 6 chunks, got %d", len(chunks))
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %s", buf.String())
	}
}
