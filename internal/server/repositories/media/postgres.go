package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CanAccessPodcast(ctx context.Context, podcastID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM podcasts p
			WHERE p.id = $1 AND (
				p.owner_id = $2 OR
				EXISTS (SELECT 1 FROM podcast_members m WHERE m.podcast_id = p.id AND m.user_id = $2)
			)
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, podcastID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) SetEpisodeMediaURL(ctx context.Context, episodeID, url string) error {
	query := `
		UPDATE episodes
		SET media_url = $2, updated_at = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, episodeID, url, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) GetClip(ctx context.Context, clipID string) (*models.Clip, error) {
	query := `
		SELECT id, post_id, podcast_id
		FROM clips
		WHERE id = $1
	`
	return r.scanClip(r.db.QueryRowContext(ctx, query, clipID))
}

func (r *PostgresRepository) FindClipByPost(ctx context.Context, postID string) (*models.Clip, error) {
	query := `
		SELECT id, post_id, podcast_id
		FROM clips
		WHERE post_id = $1
		ORDER BY id
		LIMIT 1
	`
	return r.scanClip(r.db.QueryRowContext(ctx, query, postID))
}

func (r *PostgresRepository) scanClip(row *sql.Row) (*models.Clip, error) {
	c := &models.Clip{}
	if err := row.Scan(&c.ID, &c.PostID, &c.PodcastID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListExports(ctx context.Context, clipID string) ([]*models.MediaExport, error) {
	query := `
		SELECT id, clip_id, format, url, size_bytes, created_at
		FROM media_exports
		WHERE clip_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, clipID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.MediaExport
	for rows.Next() {
		e := &models.MediaExport{}
		if err := rows.Scan(&e.ID, &e.ClipID, &e.Format, &e.URL, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CreateSource(ctx context.Context, s *models.Source) error {
	query := `
		INSERT INTO sources (id, podcast_id, episode_id, created_by, filename, url, size_bytes, fingerprint, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.PodcastID, s.EpisodeID, s.CreatedBy, s.Filename, s.URL,
		s.SizeBytes, s.Fingerprint, string(s.Status), s.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSource(ctx context.Context, id string) (*models.Source, error) {
	query := `
		SELECT id, podcast_id, episode_id, created_by, filename, url, size_bytes, fingerprint, status, error_message, created_at, updated_at
		FROM sources
		WHERE id = $1
	`
	var (
		s       models.Source
		episode sql.NullString
		status  string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.PodcastID, &episode, &s.CreatedBy, &s.Filename, &s.URL,
		&s.SizeBytes, &s.Fingerprint, &status, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if episode.Valid {
		s.EpisodeID = &episode.String
	}
	s.Status = models.SourceStatus(status)
	return &s, nil
}

func (r *PostgresRepository) UpdateSourceStatus(ctx context.Context, id string, status models.SourceStatus, errMsg string) error {
	query := `
		UPDATE sources
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, string(status), errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) KnownFingerprints(ctx context.Context, podcastID string, fingerprints []string) ([]string, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(fingerprints)+1)
	args = append(args, podcastID)
	placeholders := make([]string, len(fingerprints))
	for i, fp := range fingerprints {
		args = append(args, fp)
		placeholders[i] = "$" + strconv.Itoa(i+2)
	}

	query := `
		SELECT DISTINCT fingerprint
		FROM sources
		WHERE podcast_id = $1 AND fingerprint IN (` + strings.Join(placeholders, ", ") + `)
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var known []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		known = append(known, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return known, nil
}
