// Package youtube publishes videos through the YouTube Data API resumable
// upload protocol.
//
// The resumable session URI is the upload target. A transfer always asks the
// session how many bytes it already holds and streams the source from there,
// so a restarted run never re-sends what YouTube acknowledged.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/config"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	statusResumeIncomplete = 308
	watchURL               = "https://www.youtube.com/watch?v="
	defaultPrivacy         = "private"
	defaultCategory        = "22"
	videoContentType       = "video/mp4"
	progressStep           = 5
)

type Driver struct {
	api       *retryablehttp.Client
	upload    *http.Client
	source    *http.Client
	apiBase   string
	uploadURL string
	logger    logging.Logger
}

// New returns a driver. api carries the small JSON calls and is retried;
// the byte stream goes through api's underlying client unbuffered. source
// reads the rendered media.
func New(cfg config.Platform, api *retryablehttp.Client, source *http.Client, l logging.Logger) *Driver {
	return &Driver{
		api:       api,
		upload:    api.HTTPClient,
		source:    source,
		apiBase:   strings.TrimRight(cfg.APIBaseURL, "/"),
		uploadURL: cfg.UploadURL,
		logger:    l.With("module", "youtube"),
	}
}

func (d *Driver) Platform() models.Platform { return models.PlatformYouTube }

func (d *Driver) HasPosting() bool { return false }

type snippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type videoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

type videoInsert struct {
	Snippet snippet     `json:"snippet"`
	Status  videoStatus `json:"status"`
}

func insertBody(m models.PublishMetadata) videoInsert {
	title := m.Title
	if title == "" {
		title = "Untitled"
	}
	privacy := m.Privacy
	if privacy == "" {
		privacy = defaultPrivacy
	}
	return videoInsert{
		Snippet: snippet{Title: title, Description: m.Description, Tags: m.Tags, CategoryID: defaultCategory},
		Status:  videoStatus{PrivacyStatus: privacy},
	}
}

// AcquireTarget opens a resumable upload session.
func (d *Driver) AcquireTarget(ctx context.Context, job *publish.Job) error {
	u := job.Upload

	body, err := json.Marshal(insertBody(u.Metadata))
	if err != nil {
		return err
	}

	q := url.Values{"uploadType": {"resumable"}, "part": {"snippet,status"}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.uploadURL+"?"+q.Encode(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+job.Token.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(u.SourceBytes, 10))
	req.Header.Set("X-Upload-Content-Type", videoContentType)

	resp, err := d.api.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netx.UnwrapError(resp)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return fmt.Errorf("resumable session response carries no Location header")
	}

	u.UploadTarget = loc
	d.logger.Info(ctx, "resumable session opened", "upload_id", u.ID)
	return job.Save(ctx)
}

type videoResource struct {
	ID string `json:"id"`
}

func decodeVideo(r io.Reader) (string, error) {
	var v videoResource
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return "", fmt.Errorf("error decoding video resource: %w", err)
	}
	if v.ID == "" {
		return "", fmt.Errorf("video resource carries no id")
	}
	return v.ID, nil
}

// offset asks the session how many bytes it holds. When the upload is
// already complete the video id is returned instead.
func (d *Driver) offset(ctx context.Context, job *publish.Job) (int64, string, error) {
	u := job.Upload
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.UploadTarget, http.NoBody)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+job.Token.AccessToken)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", u.SourceBytes))

	resp, err := d.upload.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case statusResumeIncomplete:
		end, ok := netx.ParseRangeEnd(resp.Header.Get("Range"))
		if !ok {
			return 0, "", nil
		}
		return end + 1, "", nil
	case http.StatusOK, http.StatusCreated:
		id, err := decodeVideo(resp.Body)
		return u.SourceBytes, id, err
	}
	return 0, "", netx.UnwrapError(resp)
}

// Transfer streams the source into the session from the offset YouTube
// reports.
func (d *Driver) Transfer(ctx context.Context, job *publish.Job) error {
	u := job.Upload

	offset, id, err := d.offset(ctx, job)
	if err != nil {
		return fmt.Errorf("error querying upload offset: %w", err)
	}
	if id == "" {
		if id, err = d.stream(ctx, job, offset); err != nil {
			return err
		}
	}

	u.PlatformMediaID = id
	u.PublishedID = id
	u.PlatformURL = watchURL + id
	d.logger.Info(ctx, "video uploaded", "upload_id", u.ID, "video_id", id)
	return nil
}

func (d *Driver) stream(ctx context.Context, job *publish.Job, offset int64) (string, error) {
	u := job.Upload
	if offset > 0 {
		d.logger.Info(ctx, "resuming upload", "upload_id", u.ID, "offset", offset)
	}

	// the offset query may have run on a token that is about to expire
	token, err := job.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, err := netx.OpenRange(ctx, d.source, u.SourceURL, offset)
	if err != nil {
		return "", fmt.Errorf("error opening source: %w", err)
	}
	defer src.Close()

	// the transport reads the body on its own goroutine
	var (
		mu      sync.Mutex
		saveErr error
	)
	body := publish.NewProgressReader(src, offset, u.SourceBytes, progressStep, func(pct int) {
		mu.Lock()
		defer mu.Unlock()
		u.UploadProgress = pct
		if err := job.Save(ctx); err != nil && saveErr == nil {
			saveErr = err
			cancel()
		}
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.UploadTarget, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = u.SourceBytes - offset
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", videoContentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, u.SourceBytes-1, u.SourceBytes))

	resp, err := d.upload.Do(req)
	if err == nil {
		defer resp.Body.Close()
	}
	mu.Lock()
	serr := saveErr
	mu.Unlock()
	if serr != nil {
		return "", serr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return decodeVideo(resp.Body)
	case statusResumeIncomplete:
		return "", fmt.Errorf("%w: session holds %s after full transfer", common.ErrTransientNetwork, resp.Header.Get("Range"))
	}
	return "", netx.UnwrapError(resp)
}

type videoList struct {
	Items []struct {
		Status struct {
			UploadStatus    string `json:"uploadStatus"`
			FailureReason   string `json:"failureReason"`
			RejectionReason string `json:"rejectionReason"`
		} `json:"status"`
		ProcessingDetails struct {
			ProcessingStatus        string `json:"processingStatus"`
			ProcessingFailureReason string `json:"processingFailureReason"`
			ProcessingProgress      struct {
				PartsTotal     json.Number `json:"partsTotal"`
				PartsProcessed json.Number `json:"partsProcessed"`
			} `json:"processingProgress"`
		} `json:"processingDetails"`
	} `json:"items"`
}

// PollProcessing reads the upload and processing status of the video.
func (d *Driver) PollProcessing(ctx context.Context, job *publish.Job) (publish.Poll, error) {
	u := job.Upload
	q := url.Values{"part": {"status,processingDetails"}, "id": {u.PlatformMediaID}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, d.apiBase+"/videos?"+q.Encode(), nil)
	if err != nil {
		return publish.Poll{}, err
	}
	req.Header.Set("Authorization", "Bearer "+job.Token.AccessToken)

	resp, err := d.api.Do(req)
	if err != nil {
		return publish.Poll{}, fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return publish.Poll{}, netx.UnwrapError(resp)
	}

	var list videoList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return publish.Poll{}, fmt.Errorf("error decoding video status: %w", err)
	}
	if len(list.Items) == 0 {
		// freshly uploaded videos can take a moment to show up
		return publish.Poll{}, nil
	}

	item := list.Items[0]
	switch item.Status.UploadStatus {
	case "processed":
		return publish.Poll{Done: true, Progress: 100}, nil
	case "failed", "rejected", "deleted":
		reason := item.Status.FailureReason
		if reason == "" {
			reason = item.Status.RejectionReason
		}
		return publish.Poll{}, fmt.Errorf("upload %s (%s): %w", item.Status.UploadStatus, reason, common.ErrPlatformProcessingFailed)
	}

	pd := item.ProcessingDetails
	switch pd.ProcessingStatus {
	case "failed", "terminated":
		return publish.Poll{}, fmt.Errorf("processing %s (%s): %w", pd.ProcessingStatus, pd.ProcessingFailureReason, common.ErrPlatformProcessingFailed)
	case "succeeded":
		return publish.Poll{Done: true, Progress: 100}, nil
	}

	return publish.Poll{Progress: partsProgress(pd.ProcessingProgress.PartsProcessed, pd.ProcessingProgress.PartsTotal)}, nil
}

func partsProgress(done, total json.Number) int {
	d, err1 := done.Int64()
	t, err2 := total.Int64()
	if err1 != nil || err2 != nil || t <= 0 {
		return 0
	}
	pct := int(d * 100 / t)
	if pct > 99 {
		pct = 99
	}
	return pct
}

// FinalizePost has nothing to do: the uploaded video is the post.
func (d *Driver) FinalizePost(ctx context.Context, job *publish.Job) error {
	return nil
}

var _ publish.Driver = (*Driver)(nil)
