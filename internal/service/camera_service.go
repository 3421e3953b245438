package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// CameraService 拍照并保存到本地相册
type CameraService interface {
	TakePhoto(ctx context.Context) (model.Photo, error)
	// ImportPhoto 保存外部拍摄的照片（如网关上传）
	ImportPhoto(ctx context.Context, c device.Capture) (model.Photo, error)
	Photos(ctx context.Context) ([]model.Photo, error)
	PhotoByID(ctx context.Context, id string) (*model.Photo, error)
	DeletePhoto(ctx context.Context, id string) (bool, error)
	DeleteAllPhotos(ctx context.Context) error
}

type cameraService struct {
	photos   repository.PhotoRepository
	camera   device.Camera
	location LocationService
	clock    Clock
}

func NewCameraService(photos repository.PhotoRepository, camera device.Camera, location LocationService, clock Clock) CameraService {
	return &cameraService{photos: photos, camera: camera, location: location, clock: clock}
}

func (s *cameraService) TakePhoto(ctx context.Context) (model.Photo, error) {
	c, err := s.camera.Capture(ctx)
	if err != nil {
		return model.Photo{}, err
	}
	return s.ImportPhoto(ctx, c)
}

func (s *cameraService) ImportPhoto(ctx context.Context, c device.Capture) (model.Photo, error) {
	if c.WebPath == "" && c.DataURL == "" {
		return model.Photo{}, ErrInvalidInput
	}
	p := model.Photo{
		ID:        uuid.NewString(),
		WebPath:   c.WebPath,
		DataURL:   c.DataURL,
		CreatedAt: s.clock.now(),
	}
	// 定位失败不影响拍照
	if loc, err := s.location.CurrentLocation(ctx); err != nil {
		logger.Warn("attach photo location failed", zap.Error(err))
	} else {
		p.Location = loc
	}
	if err := s.photos.Add(ctx, p); err != nil {
		return model.Photo{}, err
	}
	return p, nil
}

func (s *cameraService) Photos(ctx context.Context) ([]model.Photo, error) {
	return s.photos.List(ctx)
}

func (s *cameraService) PhotoByID(ctx context.Context, id string) (*model.Photo, error) {
	return s.photos.GetByID(ctx, id)
}

func (s *cameraService) DeletePhoto(ctx context.Context, id string) (bool, error) {
	return s.photos.Delete(ctx, id)
}

func (s *cameraService) DeleteAllPhotos(ctx context.Context) error {
	return s.photos.DeleteAll(ctx)
}
