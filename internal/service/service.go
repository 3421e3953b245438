package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrFollowSelf         = errors.New("cannot follow self")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMediaTooLarge      = errors.New("media too large")
	ErrInvalidInput       = errors.New("invalid input")
	ErrOffline            = errors.New("not available offline")
)

// Clock 当前时间，测试中替换
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Replayer 提供离线队列的重放函数
type Replayer interface {
	ReplayHandlers() map[syncq.Kind]syncq.Handler
}

// RegisterReplay 把各服务的重放函数注册到协调器
func RegisterReplay(c *syncq.Coordinator, replayers ...Replayer) error {
	for _, r := range replayers {
		for kind, h := range r.ReplayHandlers() {
			if err := c.Register(kind, h); err != nil {
				return err
			}
		}
	}
	return nil
}

var validate = validator.New()

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	return nil
}

// isNetworkError 远端不可达（非 HTTP 状态码错误）；这类失败进入离线队列
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return false
	}
	return !errors.Is(err, apiclient.ErrUnauthenticated) && !errors.Is(err, apiclient.ErrTokenExpired) &&
		!errors.Is(err, context.Canceled)
}

// shouldQueue 失败后是否值得稍后重放
func shouldQueue(err error) bool {
	return err != nil && !apiclient.IsPermanent(err) && !errors.Is(err, context.Canceled)
}

// currentUser 登录用户的最新记录（优先用户表）
func currentUser(ctx context.Context, users repository.UserRepository) (*model.User, error) {
	cur, err := users.Current(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotAuthenticated
	}
	u, err := users.GetByID(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return cur, nil
	}
	return u, nil
}

func summaryOf(users map[string]model.User, id string) model.UserSummary {
	if u, ok := users[id]; ok {
		return u.Summary()
	}
	return model.UserSummary{ID: id}
}

func indexUsers(list []model.User) map[string]model.User {
	out := make(map[string]model.User, len(list))
	for _, u := range list {
		out[u.ID] = u
	}
	return out
}
