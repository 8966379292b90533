package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	mib = int64(1 << 20)
	gib = int64(1 << 30)
)

func TestChunkSize_Clamping(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		want  int64
	}{
		{name: "one byte uses floor", total: 1, want: MinChunkSize},
		{name: "120 MiB uses floor", total: 120 * mib, want: 5 * mib},
		{name: "exactly at floor boundary", total: 5000 * mib, want: 5 * mib},
		{name: "between bounds", total: 10_000_000_000, want: 10_000_000},
		{name: "rounds up", total: 10_000_000_001, want: 10_000_001},
		{name: "50 GiB hits the cap", total: 50 * gib, want: MaxChunkSize},
		{name: "far above cap", total: 500 * gib, want: MaxChunkSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkSize(tt.total))
		})
	}
}

func TestNewPlan_120MiB(t *testing.T) {
	p := NewPlan(120 * mib)
	assert.Equal(t, 5*mib, p.ChunkSize)
	assert.Equal(t, 24, p.TotalParts)
}

func TestPlan_BoundsHoldAcrossSizes(t *testing.T) {
	sizes := []int64{1, 2, 5*mib - 1, 5 * mib, 5*mib + 1, 120 * mib, 999 * mib, 7*gib + 13, 50 * gib}
	for _, total := range sizes {
		p := NewPlan(total)
		assert.GreaterOrEqual(t, p.ChunkSize, MinChunkSize, "total=%d", total)
		assert.LessOrEqual(t, p.ChunkSize, MaxChunkSize, "total=%d", total)
		assert.GreaterOrEqual(t, int64(p.TotalParts)*p.ChunkSize, total, "total=%d", total)
		assert.Greater(t, total, int64(p.TotalParts-1)*p.ChunkSize, "total=%d", total)
	}
}

func TestPlan_PartRange(t *testing.T) {
	p := NewPlan(12 * mib)
	assert.Equal(t, 3, p.TotalParts)

	start, end, ok := p.PartRange(1)
	assert.True(t, ok)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, 5*mib, end)

	start, end, ok = p.PartRange(3)
	assert.True(t, ok)
	assert.Equal(t, 10*mib, start)
	assert.Equal(t, 12*mib, end)
	assert.Equal(t, 2*mib, p.PartSize(3))

	_, _, ok = p.PartRange(0)
	assert.False(t, ok)
	_, _, ok = p.PartRange(4)
	assert.False(t, ok)
	assert.Zero(t, p.PartSize(4))
}

func TestTotalParts_NonPositive(t *testing.T) {
	assert.Zero(t, TotalParts(0, MinChunkSize))
	assert.Zero(t, TotalParts(-1, MinChunkSize))
	assert.Zero(t, TotalParts(10, 0))
}
