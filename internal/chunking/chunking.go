// Package chunking decides how a file is split into multipart parts.
//
// The policy targets roughly a thousand parts per file while respecting the
// blob store's minimum part size and keeping each part transfer short.
package chunking

import "github.com/dmitrijs2005/mediaflow/internal/common"

const (
	// MinChunkSize is the smallest part accepted by S3-compatible stores.
	MinChunkSize int64 = 5 * common.MiB
	// MaxChunkSize caps a single part transfer.
	MaxChunkSize int64 = 50 * common.MiB

	targetParts int64 = 1000
)

// ChunkSize returns clamp(ceil(total/1000), 5 MiB, 50 MiB).
func ChunkSize(total int64) int64 {
	size := ceilDiv(total, targetParts)
	if size < MinChunkSize {
		return MinChunkSize
	}
	if size > MaxChunkSize {
		return MaxChunkSize
	}
	return size
}

// TotalParts returns the number of parts needed to carry total bytes in
// chunks of chunkSize. A non-positive total yields zero parts.
func TotalParts(total, chunkSize int64) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return int(ceilDiv(total, chunkSize))
}

// Plan bundles the sizing decision for one file.
type Plan struct {
	TotalBytes int64
	ChunkSize  int64
	TotalParts int
}

// NewPlan applies the sizing policy to total bytes.
func NewPlan(total int64) Plan {
	size := ChunkSize(total)
	return Plan{TotalBytes: total, ChunkSize: size, TotalParts: TotalParts(total, size)}
}

// PartRange returns the half-open byte range [start, end) of the 1-based
// part n. ok is false when n is outside [1, TotalParts].
func (p Plan) PartRange(n int) (start, end int64, ok bool) {
	if n < 1 || n > p.TotalParts {
		return 0, 0, false
	}
	start = int64(n-1) * p.ChunkSize
	end = start + p.ChunkSize
	if end > p.TotalBytes {
		end = p.TotalBytes
	}
	return start, end, true
}

// PartSize is the length of part n, or zero when n is out of range.
func (p Plan) PartSize(n int) int64 {
	start, end, ok := p.PartRange(n)
	if !ok {
		return 0
	}
	return end - start
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
