package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/maheshrc27/nextpost/internal/models"
)

type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *models.MediaAttachment) error
	ListByPostID(ctx context.Context, postID int64) ([]models.MediaAttachment, error)
	RemoveByPostID(ctx context.Context, tx *sql.Tx, postID int64) error
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, pm *models.MediaAttachment) error {
	overrides := []byte("{}")
	if pm.Overrides != nil {
		var err error
		if overrides, err = json.Marshal(pm.Overrides); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO post_media (post_id, asset_id, display_order, overrides)
		VALUES ($1, $2, $3, $4)
	`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, pm.PostID, pm.AssetID, pm.Order, overrides)
	} else {
		_, err = r.db.ExecContext(ctx, query, pm.PostID, pm.AssetID, pm.Order, overrides)
	}

	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

// ListByPostID returns the attachments joined with their assets, in display
// order.
func (r *postMediaRepository) ListByPostID(ctx context.Context, postID int64) ([]models.MediaAttachment, error) {
	query := `
		SELECT pm.post_id, pm.asset_id, pm.display_order, pm.overrides, pm.created_at,
			ma.kind, ma.file_url, ma.thumbnail_url
		FROM post_media pm
		JOIN media_assets ma ON ma.id = pm.asset_id
		WHERE pm.post_id = $1
		ORDER BY pm.display_order
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var attachments []models.MediaAttachment
	for rows.Next() {
		var (
			pm        models.MediaAttachment
			overrides []byte
		)
		if err := rows.Scan(&pm.PostID, &pm.AssetID, &pm.Order, &overrides, &pm.CreatedAt,
			&pm.Kind, &pm.URL, &pm.ThumbnailURL); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if len(overrides) > 0 {
			if err := json.Unmarshal(overrides, &pm.Overrides); err != nil {
				return nil, err
			}
		}
		attachments = append(attachments, pm)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return attachments, nil
}

func (r *postMediaRepository) RemoveByPostID(ctx context.Context, tx *sql.Tx, postID int64) error {
	query := `DELETE FROM post_media WHERE post_id = $1`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
