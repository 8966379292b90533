package models

import "time"

// MediaExport is a rendered file of a clip, ready to be published.
type MediaExport struct {
	ID        string
	ClipID    string
	Format    string
	URL       string
	SizeBytes int64
	CreatedAt time.Time
}

// Clip is the publishable unit a post refers to.
type Clip struct {
	ID        string
	PostID    string
	PodcastID string
}

// SourceStatus tracks post-processing of an uploaded source.
type SourceStatus string

const (
	SourceUploaded   SourceStatus = "uploaded"
	SourceProcessing SourceStatus = "processing"
	SourceReady      SourceStatus = "ready"
	SourceFailed     SourceStatus = "failed"
)

// Source is the domain record created after a transfer completes.
type Source struct {
	ID           string
	PodcastID    string
	EpisodeID    *string
	CreatedBy    string
	Filename     string
	URL          string
	SizeBytes    int64
	Fingerprint  string
	Status       SourceStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
