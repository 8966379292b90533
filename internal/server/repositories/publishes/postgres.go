package publishes

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

const uploadColumns = `id, platform, user_id, post_id, clip_id, format, metadata, source_url, source_bytes,
		       status, phase, upload_progress, processing_progress, upload_target, platform_media_id,
		       published_id, platform_url, error_message, retry_count, completed_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u *models.PublishUpload) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
		INSERT INTO publish_uploads (id, platform, user_id, post_id, clip_id, format, metadata,
			status, phase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	if _, err := r.db.ExecContext(ctx, query, u.ID, string(u.Platform), u.UserID, u.PostID, u.ClipID, u.Format,
		meta, string(u.Status), string(u.Phase), u.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.PublishUpload, error) {
	query := `
		SELECT ` + uploadColumns + `
		FROM publish_uploads
		WHERE id = $1
	`
	u, err := scanUpload(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) Update(ctx context.Context, u *models.PublishUpload) error {
	u.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE publish_uploads
		SET source_url = $2, source_bytes = $3, status = $4, phase = $5, upload_progress = $6,
		    processing_progress = $7, upload_target = $8, platform_media_id = $9, published_id = $10,
		    platform_url = $11, error_message = $12, retry_count = $13, completed_at = $14, updated_at = $15
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, u.ID, u.SourceURL, u.SourceBytes, string(u.Status), string(u.Phase),
		u.UploadProgress, u.ProcessingProgress, u.UploadTarget, u.PlatformMediaID, u.PublishedID,
		u.PlatformURL, u.ErrorMessage, u.RetryCount, u.CompletedAt, u.UpdatedAt)
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

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*models.PublishUpload, error) {
	query := `
		SELECT ` + uploadColumns + `
		FROM publish_uploads
		WHERE status IN ($1, $2, $3, $4)
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query,
		string(models.PublishPending), string(models.PublishUploading), string(models.PublishProcessing), string(models.PublishPosting))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.PublishUpload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*models.PublishUpload, error) {
	var (
		u                    models.PublishUpload
		platform, status, ph string
		meta                 []byte
		completedAt          sql.NullTime
	)
	err := row.Scan(&u.ID, &platform, &u.UserID, &u.PostID, &u.ClipID, &u.Format, &meta, &u.SourceURL, &u.SourceBytes,
		&status, &ph, &u.UploadProgress, &u.ProcessingProgress, &u.UploadTarget, &u.PlatformMediaID,
		&u.PublishedID, &u.PlatformURL, &u.ErrorMessage, &u.RetryCount, &completedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Platform = models.Platform(platform)
	u.Status = models.PublishStatus(status)
	u.Phase = models.PublishPhase(ph)
	if completedAt.Valid {
		t := completedAt.Time
		u.CompletedAt = &t
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &u.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &u, nil
}
