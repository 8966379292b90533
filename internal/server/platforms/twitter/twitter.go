// Package twitter publishes videos to X: a chunked media upload
// (INIT, APPEND, FINALIZE) followed by STATUS polling and a post that
// references the media id.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/config"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// SegmentSize is the APPEND payload size.
	SegmentSize = 4 * units.MiB

	defaultCheckAfter = 5 * time.Second
	statusURL         = "https://x.com/i/web/status/"
	mediaType         = "video/mp4"
	mediaCategory     = "tweet_video"
)

type Driver struct {
	api       *retryablehttp.Client
	source    *http.Client
	apiBase   string
	uploadURL string
	logger    logging.Logger
}

func New(cfg config.Platform, api *retryablehttp.Client, source *http.Client, l logging.Logger) *Driver {
	return &Driver{
		api:       api,
		source:    source,
		apiBase:   strings.TrimRight(cfg.APIBaseURL, "/"),
		uploadURL: cfg.UploadURL,
		logger:    l.With("module", "twitter"),
	}
}

func (d *Driver) Platform() models.Platform { return models.PlatformTwitter }

func (d *Driver) HasPosting() bool { return true }

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	ProgressPct    int    `json:"progress_percent"`
	Error          *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

type mediaResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info"`
}

func (d *Driver) do(req *retryablehttp.Request, token string, out any) error {
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.api.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netx.UnwrapError(resp)
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

func (d *Driver) command(ctx context.Context, token string, form url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.uploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return d.do(req, token, out)
}

// AcquireTarget registers the upload with INIT. The media id serves as both
// the upload target and the platform media id.
func (d *Driver) AcquireTarget(ctx context.Context, job *publish.Job) error {
	u := job.Upload

	var mr mediaResponse
	err := d.command(ctx, job.Token.AccessToken, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(u.SourceBytes, 10)},
		"media_type":     {mediaType},
		"media_category": {mediaCategory},
	}, &mr)
	if err != nil {
		return fmt.Errorf("INIT: %w", err)
	}
	if mr.MediaIDString == "" {
		return errors.New("INIT returned no media id")
	}

	u.UploadTarget = mr.MediaIDString
	u.PlatformMediaID = mr.MediaIDString
	d.logger.Info(ctx, "media upload initialized", "upload_id", u.ID, "media_id", mr.MediaIDString,
		"size", units.BytesSize(float64(u.SourceBytes)))
	return job.Save(ctx)
}

// Transfer streams the source in SegmentSize APPENDs and FINALIZEs. APPEND
// segments are indexed, so a restarted run re-sends from the first segment
// into the same media id. The token is checked before every command, and
// the wait FINALIZE asks for becomes the delay of the first STATUS poll.
func (d *Driver) Transfer(ctx context.Context, job *publish.Job) error {
	u := job.Upload

	src, err := netx.OpenRange(ctx, d.source, u.SourceURL, 0)
	if err != nil {
		return fmt.Errorf("error opening source: %w", err)
	}
	defer src.Close()

	buf := make([]byte, SegmentSize)
	var sent int64
	for index := 0; ; index++ {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if err := d.appendSegment(ctx, job, index, buf[:n]); err != nil {
				return fmt.Errorf("APPEND segment %d: %w", index, err)
			}
			sent += int64(n)
			if u.SourceBytes > 0 {
				u.UploadProgress = int(min(sent*100/u.SourceBytes, 100))
			}
			if err := job.Save(ctx); err != nil {
				return err
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("%w: reading source: %v", common.ErrTransientNetwork, rerr)
		}
	}

	token, err := job.AccessToken(ctx)
	if err != nil {
		return err
	}
	var mr mediaResponse
	if err := d.command(ctx, token, url.Values{
		"command":  {"FINALIZE"},
		"media_id": {u.UploadTarget},
	}, &mr); err != nil {
		return fmt.Errorf("FINALIZE: %w", err)
	}
	if pi := mr.ProcessingInfo; pi != nil {
		if pi.State == "failed" {
			return processingError(pi)
		}
		if pi.CheckAfterSecs > 0 {
			job.PollAfter = time.Duration(pi.CheckAfterSecs) * time.Second
		}
	}

	d.logger.Info(ctx, "media upload finalized", "upload_id", u.ID, "media_id", u.UploadTarget, "bytes", sent)
	return nil
}

func (d *Driver) appendSegment(ctx context.Context, job *publish.Job, index int, chunk []byte) error {
	// a large upload outlives the token it started with
	token, err := job.AccessToken(ctx)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", job.Upload.UploadTarget)
	_ = w.WriteField("segment_index", strconv.Itoa(index))
	part, err := w.CreateFormFile("media", "segment")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.uploadURL, body.Bytes())
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return d.do(req, token, nil)
}

func processingError(pi *processingInfo) error {
	msg := "unknown error"
	if pi.Error != nil {
		msg = pi.Error.Name
		if pi.Error.Message != "" {
			msg += ": " + pi.Error.Message
		}
	}
	return fmt.Errorf("%s: %w", msg, common.ErrPlatformProcessingFailed)
}

// PollProcessing asks STATUS for the media. Media that needs no processing
// carries no processing_info and is done.
func (d *Driver) PollProcessing(ctx context.Context, job *publish.Job) (publish.Poll, error) {
	q := url.Values{"command": {"STATUS"}, "media_id": {job.Upload.PlatformMediaID}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, d.uploadURL+"?"+q.Encode(), nil)
	if err != nil {
		return publish.Poll{}, err
	}

	var mr mediaResponse
	if err := d.do(req, job.Token.AccessToken, &mr); err != nil {
		return publish.Poll{}, fmt.Errorf("STATUS: %w", err)
	}

	pi := mr.ProcessingInfo
	if pi == nil {
		return publish.Poll{Done: true, Progress: 100}, nil
	}
	switch pi.State {
	case "succeeded":
		return publish.Poll{Done: true, Progress: 100}, nil
	case "failed":
		return publish.Poll{}, processingError(pi)
	}

	after := defaultCheckAfter
	if pi.CheckAfterSecs > 0 {
		after = time.Duration(pi.CheckAfterSecs) * time.Second
	}
	return publish.Poll{Progress: pi.ProgressPct, After: after}, nil
}

type tweetRequest struct {
	Text  string     `json:"text,omitempty"`
	Media tweetMedia `json:"media"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// FinalizePost creates the post carrying the media.
func (d *Driver) FinalizePost(ctx context.Context, job *publish.Job) error {
	u := job.Upload
	if u.PublishedID != "" {
		return nil
	}

	text := u.Metadata.Text
	if text == "" {
		text = u.Metadata.Title
	}
	body, err := json.Marshal(tweetRequest{Text: text, Media: tweetMedia{MediaIDs: []string{u.PlatformMediaID}}})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+"/tweets", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var tr tweetResponse
	if err := d.do(req, job.Token.AccessToken, &tr); err != nil {
		return err
	}
	if tr.Data.ID == "" {
		return errors.New("post response carries no id")
	}

	u.PublishedID = tr.Data.ID
	u.PlatformURL = statusURL + tr.Data.ID
	d.logger.Info(ctx, "post created", "upload_id", u.ID, "tweet_id", tr.Data.ID)
	return nil
}

var _ publish.Driver = (*Driver)(nil)
