package api

import "time"

type InitUploadRequest struct {
	PodcastID   string  `json:"podcastId"`
	EpisodeID   *string `json:"episodeId,omitempty"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"contentType"`
	TotalBytes  int64   `json:"totalBytes"`
}

type Session struct {
	SessionID  string    `json:"sessionId"`
	ChunkSize  int64     `json:"chunkSize"`
	TotalParts int       `json:"totalParts"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type Part struct {
	PartNumber    int     `json:"partNumber"`
	ETag          string  `json:"etag"`
	UploadedBytes int64   `json:"uploadedBytes"`
	Progress      float64 `json:"progress"`
	Skipped       bool    `json:"skipped"`
}

type Completed struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type SessionStatus struct {
	SessionID      string    `json:"sessionId"`
	Status         string    `json:"status"`
	Filename       string    `json:"filename"`
	TotalBytes     int64     `json:"totalBytes"`
	ChunkSize      int64     `json:"chunkSize"`
	TotalParts     int       `json:"totalParts"`
	CompletedParts []int     `json:"completedParts"`
	UploadedBytes  int64     `json:"uploadedBytes"`
	Progress       float64   `json:"progress"`
	ExpiresAt      time.Time `json:"expiresAt"`
	URL            string    `json:"url"`
	ErrorMessage   string    `json:"errorMessage"`
}

type Resumable struct {
	HasResumable bool `json:"hasResumable"`
	SessionStatus
}

type CreateSourceRequest struct {
	PodcastID   string  `json:"podcastId"`
	EpisodeID   *string `json:"episodeId,omitempty"`
	Filename    string  `json:"filename"`
	URL         string  `json:"url"`
	SizeBytes   int64   `json:"sizeBytes"`
	Fingerprint string  `json:"fingerprint"`
}

type Source struct {
	SourceID string `json:"sourceId"`
	Status   string `json:"status"`
	URL      string `json:"url"`
}
