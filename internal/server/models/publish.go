package models

import "time"

// Platform identifies an external publishing destination.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformTwitter, PlatformInstagram:
		return true
	}
	return false
}

// PublishStatus is the externally visible state of a publish attempt.
type PublishStatus string

const (
	PublishPending    PublishStatus = "pending"
	PublishUploading  PublishStatus = "uploading"
	PublishProcessing PublishStatus = "processing"
	PublishPosting    PublishStatus = "posting"
	PublishCompleted  PublishStatus = "completed"
	PublishFailed     PublishStatus = "failed"
)

// PublishPhase is where the driver loop resumes after a restart or retry.
type PublishPhase string

const (
	PhaseAcquire    PublishPhase = "acquire"
	PhaseTransfer   PublishPhase = "transfer"
	PhaseProcessing PublishPhase = "processing"
	PhasePosting    PublishPhase = "posting"
	PhaseDone       PublishPhase = "done"
)

// PublishMetadata carries the platform specific post fields.
type PublishMetadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Privacy     string   `json:"privacy,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Text        string   `json:"text,omitempty"`
	Caption     string   `json:"caption,omitempty"`
}

// PublishUpload is one attempt to publish a media object to one platform.
//
// UploadTarget holds the first identifier the platform hands out: the
// YouTube resumable URI, the X media id or the Instagram container id.
// PlatformMediaID is the video or media id once the bytes are accepted, and
// PublishedID is the tweet or published media id.
type PublishUpload struct {
	ID                 string
	Platform           Platform
	UserID             string
	PostID             string
	ClipID             string
	Format             string
	Metadata           PublishMetadata
	SourceURL          string
	SourceBytes        int64
	Status             PublishStatus
	Phase              PublishPhase
	UploadProgress     int
	ProcessingProgress int
	UploadTarget       string
	PlatformMediaID    string
	PublishedID        string
	PlatformURL        string
	ErrorMessage       string
	RetryCount         int
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsTerminal reports whether no driver should be working on the record.
func (u *PublishUpload) IsTerminal() bool {
	return u.Status == PublishCompleted || u.Status == PublishFailed
}
