package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

const (
	KeyStories       = "stories"
	KeyViewedStories = "viewed_stories"
)

// StoryRepository 过期在读取时惰性清理
type StoryRepository interface {
	// ListActive 返回 now 时刻未过期的 story，并把过期项从存储中删掉
	ListActive(ctx context.Context, now time.Time) ([]model.Story, error)
	GetByID(ctx context.Context, id string) (*model.Story, error)
	Create(ctx context.Context, s model.Story) error
	Update(ctx context.Context, id string, fn func(s *model.Story) bool) (*model.Story, error)
	Delete(ctx context.Context, id string) (bool, error)

	Viewed(ctx context.Context) (map[string]bool, error)
	MarkViewed(ctx context.Context, storyID string) error
	// RenameViewed 本地 story 换成远端 id 后保留已读状态
	RenameViewed(ctx context.Context, oldID, newID string) error
}

type storyRepository struct {
	stories *Collection[model.Story]
	viewed  *Document[[]string]
}

func NewStoryRepository(st *Storage) StoryRepository {
	return &storyRepository{
		stories: NewCollection[model.Story](st, KeyStories),
		viewed:  NewDocument[[]string](st, KeyViewedStories),
	}
}

func (r *storyRepository) ListActive(ctx context.Context, now time.Time) ([]model.Story, error) {
	var active []model.Story
	err := r.stories.Mutate(ctx, func(items []model.Story) ([]model.Story, bool, error) {
		active = make([]model.Story, 0, len(items))
		for _, s := range items {
			if s.ActiveAt(now) {
				active = append(active, s)
			}
		}
		pruned := len(items) - len(active)
		if pruned > 0 {
			logger.Debug("pruned expired stories", zap.Int("count", pruned))
		}
		return active, pruned > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

func (r *storyRepository) GetByID(ctx context.Context, id string) (*model.Story, error) {
	return r.stories.Get(ctx, id)
}

func (r *storyRepository) Create(ctx context.Context, s model.Story) error {
	return r.stories.Prepend(ctx, s)
}

func (r *storyRepository) Update(ctx context.Context, id string, fn func(s *model.Story) bool) (*model.Story, error) {
	return r.stories.Update(ctx, id, func(s *model.Story) (bool, error) { return fn(s), nil })
}

func (r *storyRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.stories.Remove(ctx, id)
}

func (r *storyRepository) Viewed(ctx context.Context) (map[string]bool, error) {
	ids, _, err := r.viewed.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *storyRepository) MarkViewed(ctx context.Context, storyID string) error {
	return r.viewed.Mutate(ctx, func(ids *[]string, _ bool) (bool, error) {
		var changed bool
		*ids, changed = model.AddToSet(*ids, storyID)
		return changed, nil
	})
}

func (r *storyRepository) RenameViewed(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	return r.viewed.Mutate(ctx, func(ids *[]string, _ bool) (bool, error) {
		var removed bool
		*ids, removed = model.RemoveFromSet(*ids, oldID)
		if !removed {
			return false, nil
		}
		*ids, _ = model.AddToSet(*ids, newID)
		return true, nil
	})
}
