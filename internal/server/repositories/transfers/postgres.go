package transfers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

const sessionColumns = `id, podcast_id, episode_id, created_by, storage_upload_id, storage_key,
		       destination_path, filename, content_type, total_bytes, chunk_size, total_parts,
		       completed_parts, uploaded_bytes, status, error_message, url, expires_at,
		       created_at, updated_at`

// PostgresRepository stores transfer sessions over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.TransferSession) error {
	parts, err := json.Marshal(nonNilParts(s.CompletedParts))
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	query := `
		INSERT INTO transfer_sessions (id, podcast_id, episode_id, created_by, storage_upload_id, storage_key,
			destination_path, filename, content_type, total_bytes, chunk_size, total_parts,
			completed_parts, uploaded_bytes, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.PodcastID, s.EpisodeID, s.CreatedBy, s.StorageUploadID, s.StorageKey,
		s.DestinationPath, s.Filename, s.ContentType, s.TotalBytes, s.ChunkSize, s.TotalParts,
		parts, s.UploadedBytes, string(s.Status), s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.TransferSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM transfer_sessions
		WHERE id = $1
	`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Update(ctx context.Context, s *models.TransferSession) error {
	parts, err := json.Marshal(nonNilParts(s.CompletedParts))
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE transfer_sessions
		SET completed_parts = $2, uploaded_bytes = $3, status = $4, error_message = $5, url = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, s.ID, parts, s.UploadedBytes, string(s.Status), s.ErrorMessage, s.URL, s.UpdatedAt)
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

func (r *PostgresRepository) FindLatestUploading(ctx context.Context, podcastID, userID string) (*models.TransferSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM transfer_sessions
		WHERE podcast_id = $1 AND created_by = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSession(r.db.QueryRowContext(ctx, query, podcastID, userID, string(models.TransferUploading)))
}

func scanSession(row *sql.Row) (*models.TransferSession, error) {
	var (
		s       models.TransferSession
		episode sql.NullString
		parts   []byte
		status  string
	)
	err := row.Scan(&s.ID, &s.PodcastID, &episode, &s.CreatedBy, &s.StorageUploadID, &s.StorageKey,
		&s.DestinationPath, &s.Filename, &s.ContentType, &s.TotalBytes, &s.ChunkSize, &s.TotalParts,
		&parts, &s.UploadedBytes, &status, &s.ErrorMessage, &s.URL, &s.ExpiresAt,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if episode.Valid {
		s.EpisodeID = &episode.String
	}
	s.Status = models.TransferStatus(status)
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &s.CompletedParts); err != nil {
			return nil, fmt.Errorf("decode parts: %w", err)
		}
	}
	return &s, nil
}

func nonNilParts(p []models.CompletedPart) []models.CompletedPart {
	if p == nil {
		return []models.CompletedPart{}
	}
	return p
}
