package repository

import (
	"context"

	"github.com/d60-Lab/beunreal/internal/model"
)

const (
	KeyMediaCache = "media_cache"
	KeyPhotos     = "photos"
)

// MediaCache 以 id 为键缓存媒体元数据
type MediaCache interface {
	Get(ctx context.Context, id string) (*model.Media, error)
	Put(ctx context.Context, m model.Media) error
	Delete(ctx context.Context, id string) error
}

type mediaCache struct {
	doc *Document[map[string]model.Media]
}

func NewMediaCache(st *Storage) MediaCache {
	return &mediaCache{doc: NewDocument[map[string]model.Media](st, KeyMediaCache)}
}

func (c *mediaCache) Get(ctx context.Context, id string) (*model.Media, error) {
	all, _, err := c.doc.Load(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := all[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (c *mediaCache) Put(ctx context.Context, m model.Media) error {
	return c.doc.Mutate(ctx, func(all *map[string]model.Media, _ bool) (bool, error) {
		if *all == nil {
			*all = make(map[string]model.Media)
		}
		(*all)[m.ID] = m
		return true, nil
	})
}

func (c *mediaCache) Delete(ctx context.Context, id string) error {
	return c.doc.Mutate(ctx, func(all *map[string]model.Media, _ bool) (bool, error) {
		if _, ok := (*all)[id]; !ok {
			return false, nil
		}
		delete(*all, id)
		return true, nil
	})
}

// PhotoRepository 本地相册
type PhotoRepository interface {
	List(ctx context.Context) ([]model.Photo, error)
	GetByID(ctx context.Context, id string) (*model.Photo, error)
	Add(ctx context.Context, p model.Photo) error
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) error
}

type photoRepository struct {
	photos *Collection[model.Photo]
}

func NewPhotoRepository(st *Storage) PhotoRepository {
	return &photoRepository{photos: NewCollection[model.Photo](st, KeyPhotos)}
}

func (r *photoRepository) List(ctx context.Context) ([]model.Photo, error) {
	return r.photos.List(ctx)
}

func (r *photoRepository) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	return r.photos.Get(ctx, id)
}

func (r *photoRepository) Add(ctx context.Context, p model.Photo) error {
	return r.photos.Prepend(ctx, p)
}

func (r *photoRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.photos.Remove(ctx, id)
}

func (r *photoRepository) DeleteAll(ctx context.Context) error {
	return r.photos.Replace(ctx, []model.Photo{})
}
