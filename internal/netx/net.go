// Package netx holds HTTP helpers shared by the platform drivers, the publish
// runner and the uploader client.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/hashicorp/go-retryablehttp"
)

// StatusError is returned for a non-success HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// UnwrapError reads the response body into a StatusError.
func UnwrapError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return err
	}
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// IsTransient reports whether err looks like a network hiccup or a
// server-side 5xx/429 that is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrTransientNetwork) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// NewRetryableClient returns a retryablehttp client logging through l.
func NewRetryableClient(l logging.Logger, retryMax int, timeout time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 10 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = &leveledLogger{l: l}
	return c
}

type leveledLogger struct {
	l logging.Logger
}

func (ll *leveledLogger) Error(msg string, kv ...interface{}) {
	ll.l.Error(context.Background(), msg, kv...)
}

func (ll *leveledLogger) Info(msg string, kv ...interface{}) {
	ll.l.Debug(context.Background(), msg, kv...)
}

func (ll *leveledLogger) Debug(msg string, kv ...interface{}) {
	ll.l.Debug(context.Background(), msg, kv...)
}

func (ll *leveledLogger) Warn(msg string, kv ...interface{}) {
	ll.l.Warn(context.Background(), msg, kv...)
}

// ProbeSize determines the byte length of the object behind url.
//
// A HEAD request is tried first. When it carries no usable Content-Length,
// a one byte range request is made and the total is parsed from its
// Content-Range header. When both fail, recorded is used if positive;
// otherwise common.ErrSizeUnknown is returned.
func ProbeSize(ctx context.Context, c *http.Client, url string, recorded int64) (int64, error) {
	if n, err := headSize(ctx, c, url); err == nil && n > 0 {
		return n, nil
	}
	if n, err := rangeSize(ctx, c, url); err == nil && n > 0 {
		return n, nil
	}
	if recorded > 0 {
		return recorded, nil
	}
	return 0, fmt.Errorf("%s: %w", url, common.ErrSizeUnknown)
}

func headSize(ctx context.Context, c *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode}
	}
	return resp.ContentLength, nil
}

func rangeSize(ctx context.Context, c *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	if resp.StatusCode != http.StatusPartialContent {
		return 0, &StatusError{Code: resp.StatusCode}
	}
	total, ok := ParseContentRangeTotal(resp.Header.Get("Content-Range"))
	if !ok {
		return 0, fmt.Errorf("unparsable content-range %q", resp.Header.Get("Content-Range"))
	}
	return total, nil
}

// ParseContentRangeTotal extracts the complete length from a header such as
// "bytes 0-0/1048576". An unknown length ("*") is reported as not ok.
func ParseContentRangeTotal(h string) (int64, bool) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || i == len(h)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(h[i+1:]), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ParseRangeEnd extracts the inclusive last byte from a resumable-upload
// Range header such as "bytes=0-1048575". ok is false when the header is
// missing or malformed.
func ParseRangeEnd(h string) (int64, bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0, false
	}
	i := strings.LastIndexByte(h, '-')
	if i < 0 || i == len(h)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(h[i+1:], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// OpenRange streams the object behind url starting at offset. The caller
// closes the returned body.
func OpenRange(ctx context.Context, c *http.Client, url string, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		return resp.Body, nil
	case offset == 0 && resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	}

	defer resp.Body.Close()
	return nil, UnwrapError(resp)
}
