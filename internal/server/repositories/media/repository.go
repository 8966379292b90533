// Package media declares the repository contract for the podcast-side
// records the pipeline reads and updates: podcasts and their members,
// episodes, clips with their rendered exports, and uploaded sources.
package media

import (
	"context"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

type Repository interface {
	// CanAccessPodcast reports whether userID owns or is a member of podcastID.
	CanAccessPodcast(ctx context.Context, podcastID, userID string) (bool, error)

	// SetEpisodeMediaURL records the final object URL on an episode.
	SetEpisodeMediaURL(ctx context.Context, episodeID, url string) error

	GetClip(ctx context.Context, clipID string) (*models.Clip, error)
	FindClipByPost(ctx context.Context, postID string) (*models.Clip, error)

	// ListExports returns rendered files of a clip, newest first.
	ListExports(ctx context.Context, clipID string) ([]*models.MediaExport, error)

	CreateSource(ctx context.Context, s *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	UpdateSourceStatus(ctx context.Context, id string, status models.SourceStatus, errMsg string) error

	// KnownFingerprints returns the subset of fingerprints already recorded
	// for podcastID.
	KnownFingerprints(ctx context.Context, podcastID string, fingerprints []string) ([]string, error)
}
