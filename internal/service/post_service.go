package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
)

// PostService 帖子、点赞、评论（仅本地）
type PostService interface {
	CreatePost(ctx context.Context, imageURL, caption string) (model.Post, error)
	GetPosts(ctx context.Context) ([]model.Post, error)
	GetPostByID(ctx context.Context, id string) (*model.Post, error)
	GetPostsByUser(ctx context.Context, userID string) ([]model.Post, error)
	GetFeedPosts(ctx context.Context) ([]model.PostWithUser, error)
	LikePost(ctx context.Context, id string) (model.Post, error)
	UnlikePost(ctx context.Context, id string) (model.Post, error)
	AddComment(ctx context.Context, postID, text string) (model.Post, error)
	DeletePost(ctx context.Context, id string) (bool, error)
	GetCommentsWithUsers(ctx context.Context, postID string) ([]model.CommentWithUser, error)
}

type postService struct {
	posts repository.PostRepository
	users repository.UserRepository
	clock Clock
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, clock Clock) PostService {
	return &postService{posts: posts, users: users, clock: clock}
}

func (s *postService) CreatePost(ctx context.Context, imageURL, caption string) (model.Post, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return model.Post{}, err
	}
	if strings.TrimSpace(imageURL) == "" {
		return model.Post{}, ErrInvalidInput
	}
	p := model.Post{
		ID:        uuid.NewString(),
		UserID:    me.ID,
		ImageURL:  imageURL,
		Caption:   caption,
		CreatedAt: s.clock.now(),
		Likes:     []string{},
		Comments:  []model.Comment{},
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return model.Post{}, err
	}
	return p, nil
}

func (s *postService) GetPosts(ctx context.Context) ([]model.Post, error) {
	return s.posts.List(ctx)
}

func (s *postService) GetPostByID(ctx context.Context, id string) (*model.Post, error) {
	return s.posts.GetByID(ctx, id)
}

func (s *postService) GetPostsByUser(ctx context.Context, userID string) ([]model.Post, error) {
	return s.posts.ListByUsers(ctx, userID)
}

// GetFeedPosts 关注的人和自己的帖子，新的在前
func (s *postService) GetFeedPosts(ctx context.Context) ([]model.PostWithUser, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return nil, err
	}
	authors := append(append([]string{}, me.Following...), me.ID)
	posts, err := s.posts.ListByUsers(ctx, authors...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })

	users, err := s.users.GetByIDs(ctx, authors)
	if err != nil {
		return nil, err
	}
	byID := indexUsers(users)
	out := make([]model.PostWithUser, 0, len(posts))
	for _, p := range posts {
		out = append(out, model.PostWithUser{Post: p, User: summaryOf(byID, p.UserID)})
	}
	return out, nil
}

func (s *postService) mutate(ctx context.Context, id string, fn func(p *model.Post, me *model.User) bool) (model.Post, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return model.Post{}, err
	}
	p, err := s.posts.Update(ctx, id, func(p *model.Post) bool { return fn(p, me) })
	if errors.Is(err, repository.ErrNotFound) {
		return model.Post{}, ErrNotFound
	}
	if err != nil {
		return model.Post{}, err
	}
	return *p, nil
}

// LikePost 重复点赞不改变结果
func (s *postService) LikePost(ctx context.Context, id string) (model.Post, error) {
	return s.mutate(ctx, id, func(p *model.Post, me *model.User) bool {
		var changed bool
		p.Likes, changed = model.AddToSet(p.Likes, me.ID)
		return changed
	})
}

func (s *postService) UnlikePost(ctx context.Context, id string) (model.Post, error) {
	return s.mutate(ctx, id, func(p *model.Post, me *model.User) bool {
		var changed bool
		p.Likes, changed = model.RemoveFromSet(p.Likes, me.ID)
		return changed
	})
}

func (s *postService) AddComment(ctx context.Context, postID, text string) (model.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Post{}, ErrInvalidInput
	}
	return s.mutate(ctx, postID, func(p *model.Post, me *model.User) bool {
		p.Comments = append(p.Comments, model.Comment{
			ID:        uuid.NewString(),
			UserID:    me.ID,
			Text:      text,
			CreatedAt: s.clock.now(),
		})
		return true
	})
}

// DeletePost 只有作者可以删除；帖子不存在返回 false
func (s *postService) DeletePost(ctx context.Context, id string) (bool, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return false, err
	}
	p, err := s.posts.GetByID(ctx, id)
	if err != nil || p == nil {
		return false, err
	}
	if p.UserID != me.ID {
		return false, ErrForbidden
	}
	return s.posts.Delete(ctx, id)
}

func (s *postService) GetCommentsWithUsers(ctx context.Context, postID string) ([]model.CommentWithUser, error) {
	p, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	ids := make([]string, 0, len(p.Comments))
	for _, c := range p.Comments {
		ids = append(ids, c.UserID)
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := indexUsers(users)
	out := make([]model.CommentWithUser, 0, len(p.Comments))
	for _, c := range p.Comments {
		cw := model.CommentWithUser{Comment: c}
		if u, ok := byID[c.UserID]; ok {
			sum := u.Summary()
			cw.User = &sum
		}
		out = append(out, cw)
	}
	return out, nil
}
