package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MaxUploadSize bounds a single media upload.
const MaxUploadSize = 512 << 20

var allowedMediaTypes = map[string]platform.MediaKind{
	"jpg":  platform.MediaImage,
	"jpeg": platform.MediaImage,
	"png":  platform.MediaImage,
	"mp4":  platform.MediaVideo,
	"mov":  platform.MediaVideo,
}

type MediaService interface {
	Upload(ctx context.Context, userID int64, fileName string, file []byte) (*models.MediaAsset, error)
	Get(ctx context.Context, userID, assetID int64) (*models.MediaAsset, error)
	Remove(ctx context.Context, userID, assetID int64) error
}

type mediaService struct {
	ma    repository.MediaAssetRepository
	store ObjectStore
}

func NewMediaService(ma repository.MediaAssetRepository, store ObjectStore) MediaService {
	return &mediaService{ma: ma, store: store}
}

// Upload sniffs the file content, stores it under a random key and records
// the asset. The client-supplied name is kept for display only.
func (s *mediaService) Upload(ctx context.Context, userID int64, fileName string, file []byte) (*models.MediaAsset, error) {
	if len(file) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if len(file) > MaxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, MaxUploadSize)
	}

	fileType, err := filetype.Match(file)
	if err != nil || fileType == types.Unknown {
		return nil, fmt.Errorf("%w: unsupported file type", ErrInvalidInput)
	}
	kind, ok := allowedMediaTypes[fileType.Extension]
	if !ok {
		return nil, fmt.Errorf("%w: file type %s is not allowed", ErrInvalidInput, fileType.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	key := id + "." + fileType.Extension

	if err := s.store.Put(ctx, key, file, fileType.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	if fileName == "" {
		fileName = key
	}
	asset := &models.MediaAsset{
		UserID:   userID,
		FileName: fileName,
		Kind:     kind,
		MIMEType: fileType.MIME.Value,
		FileSize: int64(len(file)),
		FileURL:  s.store.PublicURL(key),
	}
	if asset.ID, err = s.ma.Create(ctx, nil, asset); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Error("error removing orphaned upload", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("error saving media asset: %w", err)
	}

	slog.Info("media uploaded", "asset_id", asset.ID, "user_id", userID, "kind", kind, "size", asset.FileSize)
	return asset, nil
}

func (s *mediaService) Get(ctx context.Context, userID, assetID int64) (*models.MediaAsset, error) {
	asset, err := s.ma.GetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("error getting media asset: %w", err)
	}
	if asset == nil || asset.UserID != userID {
		return nil, fmt.Errorf("media %d: %w", assetID, ErrNotFound)
	}
	return asset, nil
}

// Remove deletes the asset row; the database refuses while a post still
// references it.
func (s *mediaService) Remove(ctx context.Context, userID, assetID int64) error {
	if _, err := s.Get(ctx, userID, assetID); err != nil {
		return err
	}
	if err := s.ma.Remove(ctx, assetID); err != nil {
		return fmt.Errorf("error removing media asset: %w", err)
	}
	return nil
}
