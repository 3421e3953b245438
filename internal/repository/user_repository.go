package repository

import (
	"context"
	"strings"

	"github.com/d60-Lab/beunreal/internal/model"
)

const (
	KeyUsers     = "users"
	KeyUserData  = "user_data"
	KeyAuthToken = "auth_token"
)

// UserRepository 本地用户表 + 当前会话
type UserRepository interface {
	List(ctx context.Context) ([]model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	// FindByLogin 按邮箱或用户名查找（不区分大小写）
	FindByLogin(ctx context.Context, login string) (*model.User, error)
	Search(ctx context.Context, query string) ([]model.User, error)
	Save(ctx context.Context, u model.User) error
	Update(ctx context.Context, id string, fn func(u *model.User) bool) (*model.User, error)
	// Follow/Unfollow 在同一次写入里维护双向集合
	Follow(ctx context.Context, followerID, followeeID string) (bool, error)
	Unfollow(ctx context.Context, followerID, followeeID string) (bool, error)

	Current(ctx context.Context) (*model.User, error)
	SetCurrent(ctx context.Context, u model.User) error
	Token(ctx context.Context) (string, bool, error)
	SetToken(ctx context.Context, token string) error
	ClearSession(ctx context.Context) error
}

type userRepository struct {
	st      *Storage
	users   *Collection[model.User]
	current *Document[model.User]
}

func NewUserRepository(st *Storage) UserRepository {
	return &userRepository{
		st:      st,
		users:   NewCollection[model.User](st, KeyUsers),
		current: NewDocument[model.User](st, KeyUserData),
	}
}

func (r *userRepository) List(ctx context.Context) ([]model.User, error) {
	return r.users.List(ctx)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.users.Get(ctx, id)
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.users.Find(ctx, func(u model.User) bool {
		_, ok := want[u.ID]
		return ok
	})
}

func (r *userRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	found, err := r.users.Find(ctx, func(u model.User) bool {
		return strings.ToLower(u.Email) == login || strings.ToLower(u.Username) == login
	})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (r *userRepository) Search(ctx context.Context, query string) ([]model.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return r.users.Find(ctx, func(u model.User) bool {
		return strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.FullName), q)
	})
}

func (r *userRepository) Save(ctx context.Context, u model.User) error {
	if err := r.users.Save(ctx, u); err != nil {
		return err
	}
	return r.refreshCurrent(ctx, u)
}

func (r *userRepository) Update(ctx context.Context, id string, fn func(u *model.User) bool) (*model.User, error) {
	u, err := r.users.Update(ctx, id, func(u *model.User) (bool, error) { return fn(u), nil })
	if err != nil {
		return nil, err
	}
	if err := r.refreshCurrent(ctx, *u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepository) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	return r.relate(ctx, followerID, followeeID, model.AddToSet)
}

func (r *userRepository) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	return r.relate(ctx, followerID, followeeID, model.RemoveFromSet)
}

// relate 对 follower.Following 和 followee.Followers 做同一种集合操作；
// followee 可能只存在于远端，此时只改 follower
func (r *userRepository) relate(ctx context.Context, followerID, followeeID string,
	op func([]string, string) ([]string, bool)) (bool, error) {
	var touched []model.User
	found := false
	err := r.users.Mutate(ctx, func(items []model.User) ([]model.User, bool, error) {
		changed := false
		for i := range items {
			var c bool
			switch items[i].ID {
			case followerID:
				found = true
				items[i].Following, c = op(items[i].Following, followeeID)
			case followeeID:
				items[i].Followers, c = op(items[i].Followers, followerID)
			default:
				continue
			}
			if c {
				changed = true
				touched = append(touched, items[i])
			}
		}
		if !found {
			return nil, false, ErrNotFound
		}
		return items, changed, nil
	})
	if err != nil {
		return false, err
	}
	for _, u := range touched {
		if err := r.refreshCurrent(ctx, u); err != nil {
			return false, err
		}
	}
	return len(touched) > 0, nil
}

// refreshCurrent 当前会话用户的副本与用户表保持一致
func (r *userRepository) refreshCurrent(ctx context.Context, u model.User) error {
	return r.current.Mutate(ctx, func(cur *model.User, exists bool) (bool, error) {
		if !exists || cur.ID != u.ID {
			return false, nil
		}
		*cur = u.Public()
		return true, nil
	})
}

func (r *userRepository) Current(ctx context.Context) (*model.User, error) {
	u, ok, err := r.current.Load(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) SetCurrent(ctx context.Context, u model.User) error {
	return r.current.Save(ctx, u.Public())
}

func (r *userRepository) Token(ctx context.Context) (string, bool, error) {
	return r.st.GetString(ctx, KeyAuthToken)
}

func (r *userRepository) SetToken(ctx context.Context, token string) error {
	return r.st.SetString(ctx, KeyAuthToken, token)
}

func (r *userRepository) ClearSession(ctx context.Context) error {
	if err := r.st.Remove(ctx, KeyAuthToken); err != nil {
		return err
	}
	return r.current.Clear(ctx)
}
