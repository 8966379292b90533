// Package api is the uploader's HTTP client for the mediaflow server.
//
// Control calls go through a retrying client. Part uploads do not: the
// uploader owns their retry policy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/hashicorp/go-retryablehttp"
)

const apiPrefix = "/api/v1"

type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
	raw     *http.Client
}

func New(baseURL, token string, timeout time.Duration, l logging.Logger) *Client {
	rc := netx.NewRetryableClient(l.With("module", "api_client"), 2, timeout)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		token:   token,
		http:    rc,
		raw:     rc.HTTPClient,
	}
}

// Error is a non-success answer of the server. It unwraps to the matching
// sentinel of package common so callers can use errors.Is.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusGone:
		return common.ErrExpired
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrAccessDenied
	case http.StatusConflict:
		return common.ErrNotConnected
	case http.StatusBadRequest:
		for _, s := range []error{common.ErrIncomplete, common.ErrInvalidState, common.ErrSizeLimitExceeded, common.ErrSizeUnknown} {
			if strings.Contains(e.Message, s.Error()) {
				return s
			}
		}
		return common.ErrInvalidArgument
	}
	if e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests {
		return common.ErrTransientNetwork
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*retryablehttp.Request, error) {
	var body any
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = b
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)
	return req, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	return readResponse(resp, out)
}

func readResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// InitUpload opens a transfer session.
func (c *Client) InitUpload(ctx context.Context, in InitUploadRequest) (*Session, error) {
	var s Session
	if err := c.call(ctx, http.MethodPost, "/uploads/init", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UploadPart sends one part. It is not retried here.
func (c *Client) UploadPart(ctx context.Context, sessionID string, partNumber int, data []byte) (*Part, error) {
	u := fmt.Sprintf("%s/uploads/%s/part/%d", c.baseURL, url.PathEscape(sessionID), partNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)

	resp, err := c.raw.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	var p Part
	if err := readResponse(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CompleteUpload assembles the parts and returns the object location.
func (c *Client) CompleteUpload(ctx context.Context, sessionID string) (*Completed, error) {
	var res Completed
	if err := c.call(ctx, http.MethodPost, "/uploads/"+url.PathEscape(sessionID)+"/complete", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadStatus returns the server side view of a session.
func (c *Client) UploadStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var st SessionStatus
	if err := c.call(ctx, http.MethodGet, "/uploads/"+url.PathEscape(sessionID)+"/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// FindResumable returns the newest unfinished session of the caller for the
// podcast. HasResumable is false when there is none.
func (c *Client) FindResumable(ctx context.Context, podcastID string) (*Resumable, error) {
	var r Resumable
	q := url.Values{"podcastId": {podcastID}}
	if err := c.call(ctx, http.MethodGet, "/uploads/resume?"+q.Encode(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AbortUpload discards a session.
func (c *Client) AbortUpload(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodDelete, "/uploads/"+url.PathEscape(sessionID), nil, nil)
}

// CheckDuplicates returns the fingerprints the server already has.
func (c *Client) CheckDuplicates(ctx context.Context, podcastID string, fingerprints []string) ([]string, error) {
	var res struct {
		Known []string `json:"known"`
	}
	in := struct {
		PodcastID    string   `json:"podcastId"`
		Fingerprints []string `json:"fingerprints"`
	}{podcastID, fingerprints}
	if err := c.call(ctx, http.MethodPost, "/sources/duplicates", in, &res); err != nil {
		return nil, err
	}
	return res.Known, nil
}

// CreateSource registers an uploaded object.
func (c *Client) CreateSource(ctx context.Context, in CreateSourceRequest) (*Source, error) {
	var s Source
	if err := c.call(ctx, http.MethodPost, "/sources", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ProcessSource starts server side post-processing and returns the status
// it was left in.
func (c *Client) ProcessSource(ctx context.Context, sourceID string) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, http.MethodPost, "/sources/"+url.PathEscape(sourceID)+"/process", nil, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

// IsPermanent reports whether retrying the same request cannot succeed.
func IsPermanent(err error) bool {
	for _, s := range []error{
		common.ErrorNotFound,
		common.ErrExpired,
		common.ErrInvalidState,
		common.ErrInvalidArgument,
		common.ErrIncomplete,
		common.ErrSizeLimitExceeded,
		common.ErrAccessDenied,
		common.ErrorUnauthorized,
		context.Canceled,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
