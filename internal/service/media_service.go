package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// TempMediaPrefix 尚未上传的媒体 id 前缀
const TempMediaPrefix = "temp_"

// MediaService 媒体上传、缓存和删除
type MediaService interface {
	Replayer
	// Upload 上传本地文件，离线时返回 temp_ 开头的临时 id
	Upload(ctx context.Context, path string, mediaType model.MediaType) (string, error)
	// UploadPhoto 立即上传相机照片（不排队）
	UploadPhoto(ctx context.Context, photo model.Photo) (model.Media, error)
	Get(ctx context.Context, id string) (*model.Media, error)
	Delete(ctx context.Context, id string) error
}

type mediaUploadPayload struct {
	TempID string          `json:"tempId"`
	Path   string          `json:"path"`
	Type   model.MediaType `json:"type"`
}

type mediaDeletePayload struct {
	MediaID string `json:"mediaId"`
}

type mediaService struct {
	cache   repository.MediaCache
	users   repository.UserRepository
	client  *apiclient.Client
	sync    *syncq.Coordinator
	maxSize int64
	clock   Clock
}

func NewMediaService(cache repository.MediaCache, users repository.UserRepository, client *apiclient.Client,
	sync *syncq.Coordinator, maxSize int64, clock Clock) MediaService {
	return &mediaService{cache: cache, users: users, client: client, sync: sync, maxSize: maxSize, clock: clock}
}

func localPath(p string) string { return strings.TrimPrefix(p, "file://") }

func (s *mediaService) checkSize(name string, size int64) error {
	if s.maxSize > 0 && size > s.maxSize {
		return fmt.Errorf("%w: %s is %s, limit %s", ErrMediaTooLarge, name,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.maxSize)))
	}
	return nil
}

func (s *mediaService) uploadFile(ctx context.Context, path string, mediaType model.MediaType) (model.Media, error) {
	f, err := os.Open(localPath(path))
	if err != nil {
		return model.Media{}, syncq.Permanent(err)
	}
	defer f.Close()
	m, err := s.client.UploadMedia(ctx, filepath.Base(path), f, mediaType)
	if err != nil {
		return model.Media{}, err
	}
	if err := s.cache.Put(ctx, m); err != nil {
		return model.Media{}, err
	}
	logger.Info("media uploaded", zap.String("media_id", m.ID), zap.String("size", humanize.IBytes(uint64(m.Size))))
	return m, nil
}

func (s *mediaService) Upload(ctx context.Context, path string, mediaType model.MediaType) (string, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return "", err
	}
	if mediaType != model.MediaImage && mediaType != model.MediaVideo {
		return "", ErrInvalidInput
	}
	info, err := os.Stat(localPath(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.checkSize(filepath.Base(path), info.Size()); err != nil {
		return "", err
	}

	if s.sync.UseOnline() {
		m, err := s.uploadFile(ctx, path, mediaType)
		if err == nil {
			return m.ID, nil
		}
		if !shouldQueue(err) {
			return "", err
		}
		logger.Warn("media upload failed, queued", zap.String("path", path), zap.Error(err))
	}

	tempID := TempMediaPrefix + uuid.NewString()
	if err := s.cache.Put(ctx, model.Media{
		ID:        tempID,
		Type:      mediaType,
		URL:       path,
		Size:      info.Size(),
		CreatedAt: s.clock.now(),
		UserID:    me.ID,
		Local:     true,
		LocalPath: path,
	}); err != nil {
		return "", err
	}
	if err := s.sync.Enqueue(ctx, syncq.KindMediaUpload, mediaUploadPayload{TempID: tempID, Path: path, Type: mediaType}, tempID); err != nil {
		return "", err
	}
	return tempID, nil
}

// openPhoto 优先用 data URL，否则读 webPath 指向的文件
func openPhoto(photo model.Photo) (io.Reader, int64, string, error) {
	if photo.DataURL != "" {
		data, err := decodeDataURL(photo.DataURL)
		if err != nil {
			return nil, 0, "", err
		}
		return bytes.NewReader(data), int64(len(data)), photo.ID + ".jpg", nil
	}
	f, err := os.ReadFile(localPath(photo.WebPath))
	if err != nil {
		return nil, 0, "", err
	}
	return bytes.NewReader(f), int64(len(f)), filepath.Base(photo.WebPath), nil
}

func decodeDataURL(s string) ([]byte, error) {
	_, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("%w: malformed data url", ErrInvalidInput)
	}
	if strings.Contains(s[:len(s)-len(payload)], ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	return []byte(payload), nil
}

func (s *mediaService) UploadPhoto(ctx context.Context, photo model.Photo) (model.Media, error) {
	r, size, name, err := openPhoto(photo)
	if err != nil {
		return model.Media{}, syncq.Permanent(err)
	}
	if err := s.checkSize(name, size); err != nil {
		return model.Media{}, syncq.Permanent(err)
	}
	m, err := s.client.UploadMedia(ctx, name, r, model.MediaImage)
	if err != nil {
		return model.Media{}, err
	}
	if err := s.cache.Put(ctx, m); err != nil {
		return model.Media{}, err
	}
	return m, nil
}

// Get 缓存 -> 远端；都没有时返回 nil
func (s *mediaService) Get(ctx context.Context, id string) (*model.Media, error) {
	m, err := s.cache.Get(ctx, id)
	if err != nil || m != nil {
		return m, err
	}
	if strings.HasPrefix(id, TempMediaPrefix) || !s.sync.UseOnline() {
		return nil, nil
	}
	remote, err := s.client.GetMedia(ctx, id)
	if err != nil {
		if apiclient.IsNotFound(err) {
			return nil, nil
		}
		logger.Warn("fetch media failed", zap.String("media_id", id), zap.Error(err))
		return nil, nil
	}
	if err := s.cache.Put(ctx, remote); err != nil {
		return nil, err
	}
	return &remote, nil
}

func (s *mediaService) Delete(ctx context.Context, id string) error {
	if _, err := currentUser(ctx, s.users); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		return err
	}
	// 还没上传的媒体只需撤销上传
	if strings.HasPrefix(id, TempMediaPrefix) {
		_, err := s.sync.Queue().Cancel(ctx, syncq.KindMediaUpload, id)
		return err
	}
	if s.sync.UseOnline() {
		err := s.client.DeleteMedia(ctx, id)
		if err == nil || apiclient.IsNotFound(err) {
			return nil
		}
		if !shouldQueue(err) {
			return err
		}
		logger.Warn("media delete failed, queued", zap.String("media_id", id), zap.Error(err))
	}
	return s.sync.Enqueue(ctx, syncq.KindMediaDelete, mediaDeletePayload{MediaID: id}, id)
}

func (s *mediaService) ReplayHandlers() map[syncq.Kind]syncq.Handler {
	return map[syncq.Kind]syncq.Handler{
		syncq.KindMediaUpload: func(ctx context.Context, e syncq.Entry) error {
			var p mediaUploadPayload
			if err := e.Decode(&p); err != nil {
				return syncq.Permanent(err)
			}
			m, err := s.uploadFile(ctx, p.Path, p.Type)
			if err != nil {
				return err
			}
			logger.Info("queued media uploaded", zap.String("temp_id", p.TempID), zap.String("media_id", m.ID))
			return s.cache.Delete(ctx, p.TempID)
		},
		syncq.KindMediaDelete: func(ctx context.Context, e syncq.Entry) error {
			var p mediaDeletePayload
			if err := e.Decode(&p); err != nil {
				return syncq.Permanent(err)
			}
			err := s.client.DeleteMedia(ctx, p.MediaID)
			if apiclient.IsNotFound(err) {
				return nil
			}
			return err
		},
	}
}
