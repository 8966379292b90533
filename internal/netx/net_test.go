package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSize_HeadContentLength(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n, err := ProbeSize(context.Background(), ts.Client(), ts.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)
}

func TestProbeSize_FallsBackToRangeRequest(t *testing.T) {
	var sawRange string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sawRange = r.Header.Get("Range")
		w.Header().Set("Content-Range", "bytes 0-0/777")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte{0})
	}))
	defer ts.Close()

	n, err := ProbeSize(context.Background(), ts.Client(), ts.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(777), n)
	assert.Equal(t, "bytes=0-0", sawRange)
}

func TestProbeSize_FallsBackToRecorded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	n, err := ProbeSize(context.Background(), ts.Client(), ts.URL, 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
}

func TestProbeSize_Unknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := ProbeSize(context.Background(), ts.Client(), ts.URL, 0)
	assert.ErrorIs(t, err, common.ErrSizeUnknown)
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"bytes 0-0/1048576", 1048576, true},
		{"bytes 0-0/*", 0, false},
		{"", 0, false},
		{"bytes 0-0/", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseContentRangeTotal(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseRangeEnd(t *testing.T) {
	n, ok := ParseRangeEnd("bytes=0-1048575")
	assert.True(t, ok)
	assert.Equal(t, int64(1048575), n)

	_, ok = ParseRangeEnd("")
	assert.False(t, ok)
	_, ok = ParseRangeEnd("bytes=0-")
	assert.False(t, ok)
}

func TestUnwrapError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("quota exceeded\n"))
	}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	err = UnwrapError(resp)
	assert.EqualError(t, err, "HTTP 403: quota exceeded")
	assert.True(t, IsStatus(fmt.Errorf("wrapped: %w", err), http.StatusForbidden))
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&StatusError{Code: 503}))
	assert.True(t, IsTransient(&StatusError{Code: 429}))
	assert.False(t, IsTransient(&StatusError{Code: 400}))
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.True(t, IsTransient(fmt.Errorf("x: %w", common.ErrTransientNetwork)))
	assert.False(t, IsTransient(context.Canceled))
}

func TestNewRetryableClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := NewRetryableClient(logging.NewNopLogger(), 2, 0)
	c.RetryWaitMin = 0
	c.RetryWaitMax = 0

	resp, err := c.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
}

func TestOpenRange(t *testing.T) {
	data := "0123456789"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "x", time.Time{}, strings.NewReader(data))
	}))
	defer ts.Close()

	rc, err := OpenRange(context.Background(), ts.Client(), ts.URL, 0)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, data, string(b))

	rc, err = OpenRange(context.Background(), ts.Client(), ts.URL, 4)
	require.NoError(t, err)
	b, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "456789", string(b))
}

func TestOpenRange_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := OpenRange(context.Background(), ts.Client(), ts.URL, 0)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}
