package repository

import (
	"context"

	"github.com/d60-Lab/beunreal/internal/model"
)

const KeyPosts = "posts"

type PostRepository interface {
	List(ctx context.Context) ([]model.Post, error)
	GetByID(ctx context.Context, id string) (*model.Post, error)
	ListByUsers(ctx context.Context, userIDs ...string) ([]model.Post, error)
	// Create 新帖插到最前
	Create(ctx context.Context, p model.Post) error
	Update(ctx context.Context, id string, fn func(p *model.Post) bool) (*model.Post, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type postRepository struct {
	posts *Collection[model.Post]
}

func NewPostRepository(st *Storage) PostRepository {
	return &postRepository{posts: NewCollection[model.Post](st, KeyPosts)}
}

func (r *postRepository) List(ctx context.Context) ([]model.Post, error) {
	return r.posts.List(ctx)
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	return r.posts.Get(ctx, id)
}

func (r *postRepository) ListByUsers(ctx context.Context, userIDs ...string) ([]model.Post, error) {
	set := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return r.posts.Find(ctx, func(p model.Post) bool {
		_, ok := set[p.UserID]
		return ok
	})
}

func (r *postRepository) Create(ctx context.Context, p model.Post) error {
	return r.posts.Prepend(ctx, p)
}

func (r *postRepository) Update(ctx context.Context, id string, fn func(p *model.Post) bool) (*model.Post, error) {
	return r.posts.Update(ctx, id, func(p *model.Post) (bool, error) { return fn(p), nil })
}

func (r *postRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.posts.Remove(ctx, id)
}
