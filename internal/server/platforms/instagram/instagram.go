// Package instagram publishes Reels through the Instagram Graph API content
// publishing flow. Instagram fetches the video from the source URL itself,
// so there is no byte transfer: the container is created, polled until
// FINISHED and then published.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/config"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/hashicorp/go-retryablehttp"
)

// invalidTokenCode is the Graph API error code for an expired or revoked
// access token. It is answered with HTTP 400, not 401.
const invalidTokenCode = 190

type Driver struct {
	api     *retryablehttp.Client
	apiBase string
	logger  logging.Logger
}

func New(cfg config.Platform, api *retryablehttp.Client, l logging.Logger) *Driver {
	return &Driver{
		api:     api,
		apiBase: strings.TrimRight(cfg.APIBaseURL, "/"),
		logger:  l.With("module", "instagram"),
	}
}

func (d *Driver) Platform() models.Platform { return models.PlatformInstagram }

func (d *Driver) HasPosting() bool { return true }

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// unwrap turns a Graph error response into a netx.StatusError. Token errors
// are reported as 401 so the caller refreshes and replays.
func unwrap(resp *http.Response) error {
	err := netx.UnwrapError(resp)
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var ge graphError
	if json.Unmarshal([]byte(se.Body), &ge) == nil && ge.Error.Code == invalidTokenCode {
		se.Code = http.StatusUnauthorized
	}
	return se
}

func (d *Driver) call(ctx context.Context, method, path string, params url.Values, token string, out any) error {
	params.Set("access_token", token)

	var (
		req *retryablehttp.Request
		err error
	)
	if method == http.MethodGet {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, d.apiBase+path+"?"+params.Encode(), nil)
	} else {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, d.apiBase+path, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return err
	}

	resp, err := d.api.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unwrap(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding graph response: %w", err)
	}
	return nil
}

type idResponse struct {
	ID string `json:"id"`
}

func account(job *publish.Job) (string, error) {
	if job.Token.AccountID == "" {
		return "", fmt.Errorf("%w: no instagram business account linked", common.ErrNotConnected)
	}
	return job.Token.AccountID, nil
}

// AcquireTarget creates the Reels media container.
func (d *Driver) AcquireTarget(ctx context.Context, job *publish.Job) error {
	u := job.Upload
	acct, err := account(job)
	if err != nil {
		return err
	}

	params := url.Values{
		"media_type": {"REELS"},
		"video_url":  {u.SourceURL},
	}
	if c := u.Metadata.Caption; c != "" {
		params.Set("caption", c)
	}

	var res idResponse
	if err := d.call(ctx, http.MethodPost, "/"+acct+"/media", params, job.Token.AccessToken, &res); err != nil {
		return fmt.Errorf("error creating media container: %w", err)
	}
	if res.ID == "" {
		return errors.New("container response carries no id")
	}

	u.UploadTarget = res.ID
	d.logger.Info(ctx, "media container created", "upload_id", u.ID, "container_id", res.ID)
	return job.Save(ctx)
}

// Transfer is a no-op; Instagram downloads video_url on its own.
func (d *Driver) Transfer(ctx context.Context, job *publish.Job) error {
	return nil
}

type containerStatus struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

// PollProcessing reads the container status_code.
func (d *Driver) PollProcessing(ctx context.Context, job *publish.Job) (publish.Poll, error) {
	var cs containerStatus
	params := url.Values{"fields": {"status_code,status"}}
	if err := d.call(ctx, http.MethodGet, "/"+job.Upload.UploadTarget, params, job.Token.AccessToken, &cs); err != nil {
		return publish.Poll{}, fmt.Errorf("error reading container status: %w", err)
	}

	switch cs.StatusCode {
	case "FINISHED", "PUBLISHED":
		return publish.Poll{Done: true, Progress: 100}, nil
	case "ERROR", "EXPIRED":
		return publish.Poll{}, fmt.Errorf("container %s (%s): %w", cs.StatusCode, cs.Status, common.ErrPlatformProcessingFailed)
	}
	return publish.Poll{}, nil
}

type permalinkResponse struct {
	Permalink string `json:"permalink"`
}

// FinalizePost publishes the container and looks up the permalink. A failed
// lookup leaves PlatformURL empty.
func (d *Driver) FinalizePost(ctx context.Context, job *publish.Job) error {
	u := job.Upload
	acct, err := account(job)
	if err != nil {
		return err
	}

	if u.PublishedID == "" {
		var res idResponse
		params := url.Values{"creation_id": {u.UploadTarget}}
		if err := d.call(ctx, http.MethodPost, "/"+acct+"/media_publish", params, job.Token.AccessToken, &res); err != nil {
			return fmt.Errorf("error publishing container: %w", err)
		}
		if res.ID == "" {
			return errors.New("publish response carries no id")
		}
		u.PublishedID = res.ID
		u.PlatformMediaID = res.ID
		if err := job.Save(ctx); err != nil {
			return err
		}
	}

	var pl permalinkResponse
	params := url.Values{"fields": {"permalink"}}
	if err := d.call(ctx, http.MethodGet, "/"+u.PublishedID, params, job.Token.AccessToken, &pl); err != nil {
		d.logger.Warn(ctx, "permalink lookup failed", "upload_id", u.ID, "media_id", u.PublishedID, "error", err)
		return nil
	}
	u.PlatformURL = pl.Permalink

	d.logger.Info(ctx, "reel published", "upload_id", u.ID, "media_id", u.PublishedID)
	return nil
}

var _ publish.Driver = (*Driver)(nil)
