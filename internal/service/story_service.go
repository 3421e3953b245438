package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// StoryService 24 小时 story；在线直接发布，离线先存本地再排队
type StoryService interface {
	Replayer
	CreateStory(ctx context.Context, photo model.Photo, caption string) (model.Story, error)
	ListActive(ctx context.Context) ([]model.Story, error)
	GetFeedStories(ctx context.Context) ([]model.StoryWithUser, error)
	GetNearbyStories(ctx context.Context, maxKm float64) ([]model.StoryWithUser, error)
	MarkStoryAsViewed(ctx context.Context, id string) error
	LikeStory(ctx context.Context, id string) error
	UnlikeStory(ctx context.Context, id string) error
	DeleteStory(ctx context.Context, id string) error
}

type storyCreatePayload struct {
	StoryID string `json:"storyId"`
}

type storyService struct {
	stories  repository.StoryRepository
	users    repository.UserRepository
	media    MediaService
	location LocationService
	client   *apiclient.Client
	sync     *syncq.Coordinator
	ttl      time.Duration
	clock    Clock
}

func NewStoryService(stories repository.StoryRepository, users repository.UserRepository, media MediaService,
	location LocationService, client *apiclient.Client, sync *syncq.Coordinator, ttl time.Duration, clock Clock) StoryService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &storyService{stories: stories, users: users, media: media, location: location,
		client: client, sync: sync, ttl: ttl, clock: clock}
}

func pointOf(photo model.Photo) *model.GeoPoint {
	if photo.Location == nil {
		return nil
	}
	return &model.GeoPoint{Latitude: photo.Location.Latitude, Longitude: photo.Location.Longitude}
}

// publish 上传照片并在远端创建 story
func (s *storyService) publish(ctx context.Context, photo model.Photo, caption string, loc *model.GeoPoint) (model.Story, error) {
	m, err := s.media.UploadPhoto(ctx, photo)
	if err != nil {
		return model.Story{}, err
	}
	return s.client.CreateStory(ctx, apiclient.CreateStoryInput{
		MediaID:  m.ID,
		Caption:  caption,
		Location: loc,
		Expiry:   s.ttl,
	})
}

func (s *storyService) CreateStory(ctx context.Context, photo model.Photo, caption string) (model.Story, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return model.Story{}, err
	}
	if photo.WebPath == "" && photo.DataURL == "" {
		return model.Story{}, ErrInvalidInput
	}
	now := s.clock.now()
	loc := pointOf(photo)

	if s.sync.UseOnline() {
		remote, err := s.publish(ctx, photo, caption, loc)
		if err == nil {
			if remote.UserID == "" {
				remote.UserID = me.ID
			}
			if remote.CreatedAt.IsZero() {
				remote.CreatedAt = now
			}
			if remote.ExpiresAt.IsZero() {
				remote.ExpiresAt = remote.CreatedAt.Add(s.ttl)
			}
			if err := s.stories.Create(ctx, remote); err != nil {
				return model.Story{}, err
			}
			return remote, nil
		}
		if errors.Is(err, ErrMediaTooLarge) {
			return model.Story{}, err
		}
		logger.Warn("online story create failed, storing offline", zap.Error(err))
	}

	id := uuid.NewString()
	local := model.Story{
		ID:        id,
		UserID:    me.ID,
		MediaID:   TempMediaPrefix + id,
		Caption:   caption,
		Location:  loc,
		Views:     []string{},
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Photo:     &photo,
		Pending:   true,
	}
	if err := s.stories.Create(ctx, local); err != nil {
		return model.Story{}, err
	}
	if err := s.sync.Enqueue(ctx, syncq.KindStoryCreate, storyCreatePayload{StoryID: id}, id); err != nil {
		return model.Story{}, err
	}
	return local, nil
}

func (s *storyService) ListActive(ctx context.Context) ([]model.Story, error) {
	return s.stories.ListActive(ctx, s.clock.now())
}

func (s *storyService) withViewed(ctx context.Context, list []model.StoryWithUser) ([]model.StoryWithUser, error) {
	viewed, err := s.stories.Viewed(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	out := list[:0]
	for _, st := range list {
		if !st.ExpiresAt.IsZero() && !st.ActiveAt(now) {
			continue
		}
		st.Viewed = viewed[st.ID]
		out = append(out, st)
	}
	return out, nil
}

// GetFeedStories 在线取远端 feed；离线或失败时用本地关注的人和自己的 story
func (s *storyService) GetFeedStories(ctx context.Context) ([]model.StoryWithUser, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return nil, err
	}
	if s.sync.UseOnline() {
		remote, err := s.client.Stories(ctx)
		if err == nil {
			return s.withViewed(ctx, remote)
		}
		logger.Warn("fetch story feed failed, using local stories", zap.Error(err))
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	authors := append(append([]string{}, me.Following...), me.ID)
	allowed := make(map[string]bool, len(authors))
	for _, id := range authors {
		allowed[id] = true
	}
	users, err := s.users.GetByIDs(ctx, authors)
	if err != nil {
		return nil, err
	}
	byID := indexUsers(users)
	out := make([]model.StoryWithUser, 0, len(active))
	for _, st := range active {
		if !allowed[st.UserID] {
			continue
		}
		sum := summaryOf(byID, st.UserID)
		if u, ok := byID[st.UserID]; ok {
			sum.Bio = u.Bio
		}
		out = append(out, model.StoryWithUser{Story: st, User: sum})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return s.withViewed(ctx, out)
}

// GetNearbyStories 需要在线和当前位置，否则返回空
func (s *storyService) GetNearbyStories(ctx context.Context, maxKm float64) ([]model.StoryWithUser, error) {
	if !s.sync.UseOnline() {
		return []model.StoryWithUser{}, nil
	}
	loc, err := s.location.CurrentLocation(ctx)
	if err != nil || loc == nil {
		return []model.StoryWithUser{}, err
	}
	list, err := s.client.NearbyStories(ctx, loc.Latitude, loc.Longitude, maxKm*1000)
	if err != nil {
		logger.Warn("fetch nearby stories failed", zap.Error(err))
		return []model.StoryWithUser{}, nil
	}
	return s.withViewed(ctx, list)
}

func (s *storyService) MarkStoryAsViewed(ctx context.Context, id string) error {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return err
	}
	if s.sync.UseOnline() {
		if err := s.client.ViewStory(ctx, id); err != nil {
			logger.Debug("remote story view failed", zap.String("story_id", id), zap.Error(err))
		}
	}
	if err := s.stories.MarkViewed(ctx, id); err != nil {
		return err
	}
	_, err = s.stories.Update(ctx, id, func(st *model.Story) bool {
		var changed bool
		st.Views, changed = model.AddToSet(st.Views, me.ID)
		return changed
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (s *storyService) like(ctx context.Context, id string, remote func(context.Context, string) error,
	op func([]string, string) ([]string, bool)) error {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return err
	}
	if s.sync.UseOnline() {
		err := remote(ctx, id)
		if err == nil {
			return nil
		}
		logger.Warn("remote story like failed, updating locally", zap.String("story_id", id), zap.Error(err))
	}
	_, err = s.stories.Update(ctx, id, func(st *model.Story) bool {
		var changed bool
		st.Likes, changed = op(st.Likes, me.ID)
		return changed
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *storyService) LikeStory(ctx context.Context, id string) error {
	return s.like(ctx, id, s.client.LikeStory, model.AddToSet)
}

func (s *storyService) UnlikeStory(ctx context.Context, id string) error {
	return s.like(ctx, id, s.client.UnlikeStory, model.RemoveFromSet)
}

// DeleteStory 只有作者可以删除；同时撤销未同步的创建
func (s *storyService) DeleteStory(ctx context.Context, id string) error {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return err
	}
	st, err := s.stories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if st != nil {
		if st.UserID != me.ID {
			return ErrForbidden
		}
		if _, err := s.stories.Delete(ctx, id); err != nil {
			return err
		}
		if st.Pending {
			_, err := s.sync.Queue().Cancel(ctx, syncq.KindStoryCreate, id)
			return err
		}
	}
	if s.sync.UseOnline() {
		err := s.client.DeleteStory(ctx, id)
		if err != nil && !apiclient.IsNotFound(err) {
			if st == nil {
				return err
			}
			logger.Warn("remote story delete failed", zap.String("story_id", id), zap.Error(err))
		}
	} else if st == nil {
		return ErrNotFound
	}
	return nil
}

func (s *storyService) ReplayHandlers() map[syncq.Kind]syncq.Handler {
	return map[syncq.Kind]syncq.Handler{
		syncq.KindStoryCreate: func(ctx context.Context, e syncq.Entry) error {
			var p storyCreatePayload
			if err := e.Decode(&p); err != nil {
				return syncq.Permanent(err)
			}
			local, err := s.stories.GetByID(ctx, p.StoryID)
			if err != nil {
				return err
			}
			// 已删除或已过期的 story 不再发布
			if local == nil || !local.Pending || local.Photo == nil || !local.ActiveAt(s.clock.now()) {
				return nil
			}
			remote, err := s.publish(ctx, *local.Photo, local.Caption, local.Location)
			if err != nil {
				return err
			}
			_, err = s.stories.Update(ctx, p.StoryID, func(st *model.Story) bool {
				if remote.ID != "" {
					st.ID = remote.ID
				}
				if remote.MediaID != "" {
					st.MediaID = remote.MediaID
				}
				st.Pending = false
				st.Photo = nil
				return true
			})
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if remote.ID != "" {
				return s.stories.RenameViewed(ctx, p.StoryID, remote.ID)
			}
			return nil
		},
	}
}
