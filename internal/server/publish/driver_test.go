package publish

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsSteps(t *testing.T) {
	var reported []int
	r := NewProgressReader(strings.NewReader(strings.Repeat("x", 100)), 0, 100, 25, func(pct int) {
		reported = append(reported, pct)
	})

	buf := make([]byte, 10)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, []int{30, 60, 90, 100}, reported)
}

func TestProgressReader_CountsOffset(t *testing.T) {
	var reported []int
	r := NewProgressReader(strings.NewReader(strings.Repeat("x", 50)), 50, 100, 10, func(pct int) {
		reported = append(reported, pct)
	})

	_, err := io.Copy(io.Discard, r)
	require.NoError(t, err)
	require.NotEmpty(t, reported)
	assert.Equal(t, 100, reported[len(reported)-1])
	assert.GreaterOrEqual(t, reported[0], 60)
}
