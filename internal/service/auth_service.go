package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// RegisterInput 注册参数
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=2,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

// AuthService 账号、会话和关注关系
type AuthService interface {
	Replayer
	Register(ctx context.Context, in RegisterInput) (model.User, error)
	Login(ctx context.Context, login, password string) (model.User, error)
	Logout(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (*model.User, error)
	UpdateProfile(ctx context.Context, patch model.ProfilePatch) (model.User, error)
	FollowUser(ctx context.Context, userID string) error
	UnfollowUser(ctx context.Context, userID string) error
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

type followPayload struct {
	UserID string `json:"userId"`
}

type authService struct {
	users  repository.UserRepository
	client *apiclient.Client
	sync   *syncq.Coordinator
	clock  Clock
}

func NewAuthService(users repository.UserRepository, client *apiclient.Client, sync *syncq.Coordinator, clock Clock) AuthService {
	return &authService{users: users, client: client, sync: sync, clock: clock}
}

func hashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// establish 缓存远端返回的用户和令牌，并保留本地密码哈希用于离线登录
func (s *authService) establish(ctx context.Context, res apiclient.AuthResult, password string) (model.User, error) {
	u := res.User
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock.now()
	}
	if existing, err := s.users.GetByID(ctx, u.ID); err == nil && existing != nil {
		u.PasswordHash = existing.PasswordHash
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		hash, err := hashPassword(password)
		if err != nil {
			return model.User{}, err
		}
		u.PasswordHash = hash
	}
	if err := s.users.Save(ctx, u); err != nil {
		return model.User{}, err
	}
	if err := s.users.SetToken(ctx, res.Token); err != nil {
		return model.User{}, err
	}
	if err := s.users.SetCurrent(ctx, u); err != nil {
		return model.User{}, err
	}
	return u.Public(), nil
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return model.User{}, err
	}

	if s.sync.UseOnline() {
		res, err := s.client.Register(ctx, in.Email, in.Username, in.Password)
		if err == nil {
			return s.establish(ctx, res, in.Password)
		}
		var se *apiclient.StatusError
		if errors.As(err, &se) && se.Status == http.StatusConflict {
			return model.User{}, ErrUserExists
		}
		if !isNetworkError(err) {
			return model.User{}, err
		}
		logger.Warn("remote register failed, creating local account", zap.Error(err))
	}

	if u, err := s.users.FindByLogin(ctx, in.Email); err != nil {
		return model.User{}, err
	} else if u != nil {
		return model.User{}, ErrUserExists
	}
	if u, err := s.users.FindByLogin(ctx, in.Username); err != nil {
		return model.User{}, err
	} else if u != nil {
		return model.User{}, ErrUserExists
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Following:    []string{},
		Followers:    []string{},
		CreatedAt:    s.clock.now(),
	}
	if err := s.users.Save(ctx, u); err != nil {
		return model.User{}, err
	}
	if err := s.users.SetCurrent(ctx, u); err != nil {
		return model.User{}, err
	}
	logger.Info("local account created", zap.String("user_id", u.ID))
	return u.Public(), nil
}

func (s *authService) Login(ctx context.Context, login, password string) (model.User, error) {
	if strings.TrimSpace(login) == "" || password == "" {
		return model.User{}, ErrInvalidCredentials
	}
	if s.sync.UseOnline() {
		res, err := s.client.Login(ctx, login, password)
		if err == nil {
			return s.establish(ctx, res, password)
		}
		var se *apiclient.StatusError
		if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusNotFound) {
			return model.User{}, ErrInvalidCredentials
		}
		if !isNetworkError(err) {
			return model.User{}, err
		}
		logger.Warn("remote login failed, trying local account", zap.Error(err))
	}

	u, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return model.User{}, err
	}
	if u == nil || u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return model.User{}, ErrInvalidCredentials
	}
	if err := s.users.SetCurrent(ctx, *u); err != nil {
		return model.User{}, err
	}
	return u.Public(), nil
}

func (s *authService) Logout(ctx context.Context) error {
	return s.users.ClearSession(ctx)
}

func (s *authService) IsAuthenticated(ctx context.Context) bool {
	cur, err := s.users.Current(ctx)
	return err == nil && cur != nil
}

func (s *authService) CurrentUser(ctx context.Context) (*model.User, error) {
	u, err := currentUser(ctx, s.users)
	if errors.Is(err, ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// fullPatch 把当前资料整体作为 patch，排队时后写覆盖不丢字段
func fullPatch(u model.User) model.ProfilePatch {
	return model.ProfilePatch{
		Username:       &u.Username,
		Email:          &u.Email,
		ProfilePicture: &u.ProfilePicture,
		FullName:       &u.FullName,
		Bio:            &u.Bio,
	}
}

func (s *authService) UpdateProfile(ctx context.Context, patch model.ProfilePatch) (model.User, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return model.User{}, err
	}
	next := *me
	patch.Apply(&next)
	if err := validate.Var(next.Email, "required,email"); err != nil {
		return model.User{}, errors.Join(ErrInvalidInput, err)
	}
	if err := validate.Var(next.Username, "required,min=2,max=32"); err != nil {
		return model.User{}, errors.Join(ErrInvalidInput, err)
	}

	updated, err := s.users.Update(ctx, me.ID, func(u *model.User) bool {
		patch.Apply(u)
		return true
	})
	if errors.Is(err, repository.ErrNotFound) {
		// 会话用户不在用户表中（例如旧版本数据），补写一份
		if err := s.users.Save(ctx, next); err != nil {
			return model.User{}, err
		}
		updated = &next
	} else if err != nil {
		return model.User{}, err
	}

	full := fullPatch(*updated)
	if s.sync.UseOnline() {
		// 发送完整资料，之后撤回排队中的旧版本
		if _, err := s.client.UpdateMe(ctx, full); err == nil {
			if _, err := s.sync.Queue().Cancel(ctx, syncq.KindProfileUpdate, updated.ID); err != nil {
				return model.User{}, err
			}
			return updated.Public(), nil
		} else if !shouldQueue(err) {
			return updated.Public(), fmt.Errorf("update remote profile: %w", err)
		} else {
			logger.Warn("remote profile update failed, queued", zap.Error(err))
		}
	}
	if err := s.sync.Enqueue(ctx, syncq.KindProfileUpdate, full, updated.ID); err != nil {
		return model.User{}, err
	}
	return updated.Public(), nil
}

func (s *authService) FollowUser(ctx context.Context, userID string) error {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return err
	}
	if me.ID == userID {
		return ErrFollowSelf
	}
	changed, err := s.users.Follow(ctx, me.ID, userID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	// 尚未同步的取消关注和这次关注相互抵消
	return s.relationChange(ctx, syncq.KindFollow, syncq.KindUnfollow, userID, s.client.SendFriendRequest)
}

func (s *authService) UnfollowUser(ctx context.Context, userID string) error {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return err
	}
	changed, err := s.users.Unfollow(ctx, me.ID, userID)
	if err != nil || !changed {
		return err
	}
	return s.relationChange(ctx, syncq.KindUnfollow, syncq.KindFollow, userID, s.client.RemoveFriend)
}

// relationChange 先撤回队列中的反向操作；反向操作正在重放时只能排在它之后
func (s *authService) relationChange(ctx context.Context, kind, opposite syncq.Kind, userID string,
	call func(context.Context, string) error) error {
	r, err := s.sync.Queue().Withdraw(ctx, opposite, userID)
	if err != nil {
		return err
	}
	switch r {
	case syncq.Cancelled:
		return nil
	case syncq.InFlight:
		return s.sync.Enqueue(ctx, kind, followPayload{UserID: userID}, userID)
	}
	return s.remoteOrQueue(ctx, kind, userID, call)
}

func (s *authService) remoteOrQueue(ctx context.Context, kind syncq.Kind, userID string, call func(context.Context, string) error) error {
	if s.sync.UseOnline() {
		err := call(ctx, userID)
		if err == nil {
			return nil
		}
		if !shouldQueue(err) {
			// 本地关系已更新，远端拒绝只记录
			logger.Warn("remote relation change rejected", zap.String("kind", string(kind)), zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		logger.Warn("remote relation change failed, queued", zap.String("kind", string(kind)), zap.Error(err))
	}
	return s.sync.Enqueue(ctx, kind, followPayload{UserID: userID}, userID)
}

func (s *authService) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.User{}, nil
	}
	var selfID string
	if cur, _ := s.users.Current(ctx); cur != nil {
		selfID = cur.ID
	}
	var found []model.User
	if s.sync.UseOnline() {
		remote, err := s.client.FindFriends(ctx, query)
		if err == nil {
			found = remote
		} else {
			logger.Warn("remote user search failed, using local users", zap.Error(err))
		}
	}
	if found == nil {
		local, err := s.users.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		found = local
	}
	out := make([]model.User, 0, len(found))
	for _, u := range found {
		if u.ID != selfID {
			out = append(out, u.Public())
		}
	}
	return out, nil
}

func (s *authService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil && s.sync.UseOnline() {
		remote, err := s.client.GetUser(ctx, id)
		if err != nil {
			if apiclient.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		if err := s.users.Save(ctx, remote); err != nil {
			return nil, err
		}
		u = &remote
	}
	if u == nil {
		return nil, nil
	}
	pub := u.Public()
	return &pub, nil
}

func (s *authService) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	list, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = list[i].Public()
	}
	return list, nil
}

func (s *authService) ReplayHandlers() map[syncq.Kind]syncq.Handler {
	relation := func(call func(context.Context, string) error) syncq.Handler {
		return func(ctx context.Context, e syncq.Entry) error {
			var p followPayload
			if err := e.Decode(&p); err != nil {
				return syncq.Permanent(err)
			}
			return call(ctx, p.UserID)
		}
	}
	return map[syncq.Kind]syncq.Handler{
		syncq.KindFollow:   relation(s.client.SendFriendRequest),
		// 对应的关注可能从未到达远端
		syncq.KindUnfollow: relation(func(ctx context.Context, id string) error {
			if err := s.client.RemoveFriend(ctx, id); err != nil && !apiclient.IsNotFound(err) {
				return err
			}
			return nil
		}),
		syncq.KindProfileUpdate: func(ctx context.Context, e syncq.Entry) error {
			var patch model.ProfilePatch
			if err := e.Decode(&patch); err != nil {
				return syncq.Permanent(err)
			}
			_, err := s.client.UpdateMe(ctx, patch)
			return err
		},
	}
}
