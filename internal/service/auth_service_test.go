package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/syncq"
)

func TestAuth_LocalRegisterAndLogin(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	u, err := e.auth.Register(ctx, RegisterInput{Email: "a@x.io", Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Empty(t, u.PasswordHash)
	assert.True(t, e.auth.IsAuthenticated(ctx))

	_, err = e.auth.Register(ctx, RegisterInput{Email: "a@x.io", Username: "other", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = e.auth.Register(ctx, RegisterInput{Email: "bad", Username: "b", Password: "1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, e.auth.Logout(ctx))
	assert.False(t, e.auth.IsAuthenticated(ctx))

	_, err = e.auth.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, err := e.auth.Login(ctx, "A@X.IO", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, e.api.Calls())
}

func TestAuth_OnlineLoginCachesSession(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.api.handle("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"remote-token","user":{"_id":"r1","username":"remote","email":"r@x.io"}}`))
	})

	u, err := e.auth.Login(ctx, "remote", "pw1234")
	require.NoError(t, err)
	assert.Equal(t, "r1", u.ID)

	tok, ok, err := e.storage.users.Token(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "remote-token", tok)

	// 离线时用缓存的哈希登录
	require.NoError(t, e.auth.Logout(ctx))
	e.monitor.Set(false)
	_, err = e.auth.Login(ctx, "remote", "pw1234")
	require.NoError(t, err)
}

func TestAuth_OnlineLoginRejected(t *testing.T) {
	e := newEnv(t, true)
	e.api.handle("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := e.auth.Login(context.Background(), "x", "y")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuth_FollowSymmetry(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.seedUser(t, "b", "bob")
	e.login(t, a)

	require.NoError(t, e.auth.FollowUser(ctx, "b"))
	ua, _ := e.auth.GetUserByID(ctx, "a")
	ub, _ := e.auth.GetUserByID(ctx, "b")
	assert.Contains(t, ua.Following, "b")
	assert.Contains(t, ub.Followers, "a")

	require.NoError(t, e.auth.UnfollowUser(ctx, "b"))
	ua, _ = e.auth.GetUserByID(ctx, "a")
	ub, _ = e.auth.GetUserByID(ctx, "b")
	assert.NotContains(t, ua.Following, "b")
	assert.NotContains(t, ub.Followers, "a")

	assert.ErrorIs(t, e.auth.FollowUser(ctx, "a"), ErrFollowSelf)
}

func TestAuth_OfflineFollowReplaysOnce(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.seedUser(t, "b", "bob")
	e.login(t, a)

	require.NoError(t, e.auth.FollowUser(ctx, "b"))
	pending, err := e.sync.Queue().Pending(ctx, syncq.KindFollow)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Empty(t, e.api.Calls())

	e.monitor.Set(true)
	res, err := e.sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)

	// 重复的上线事件不会再次调用
	_, err = e.sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.api.count("POST /api/friends/request/b"))
	assert.Len(t, e.api.Calls(), 1)

	n, err := e.sync.Queue().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuth_OfflineFollowThenUnfollowLeavesEmptyQueue(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.seedUser(t, "b", "bob")
	e.login(t, a)

	require.NoError(t, e.auth.FollowUser(ctx, "b"))
	require.NoError(t, e.auth.UnfollowUser(ctx, "b"))

	n, err := e.sync.Queue().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.monitor.Set(true)
	_, err = e.sync.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, e.api.Calls())
}

func TestAuth_UnfollowWhileFollowReplaysIsQueuedAfter(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.seedUser(t, "b", "bob")
	e.login(t, a)

	require.NoError(t, e.auth.FollowUser(ctx, "b"))

	var unfollowErr error
	e.api.handle("POST /api/friends/request/b", func(w http.ResponseWriter, r *http.Request) {
		// 关注请求已发出，此时用户取消关注
		unfollowErr = e.auth.UnfollowUser(ctx, "b")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	e.monitor.Set(true)
	res, err := e.sync.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, unfollowErr)
	assert.Equal(t, 2, res.Replayed)

	assert.Equal(t, []string{"POST /api/friends/request/b", "DELETE /api/friends/b"}, e.api.Calls())
	me := e.mustUser(t, "a")
	assert.False(t, me.IsFollowing("b"))
	n, err := e.sync.Queue().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuth_OnlineFollowFailureIsQueued(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.seedUser(t, "b", "bob")
	e.login(t, a)
	e.api.handle("POST /api/friends/request/b", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	require.NoError(t, e.auth.FollowUser(ctx, "b"))
	pending, err := e.sync.Queue().Pending(ctx, syncq.KindFollow)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAuth_UpdateProfileOfflineQueuesLatest(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.login(t, a)

	bio1, bio2, name := "first", "second", "Alice A."
	_, err := e.auth.UpdateProfile(ctx, model.ProfilePatch{Bio: &bio1})
	require.NoError(t, err)
	u, err := e.auth.UpdateProfile(ctx, model.ProfilePatch{Bio: &bio2, FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "second", u.Bio)

	cur, err := e.auth.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", cur.FullName)

	pending, err := e.sync.Queue().Pending(ctx, syncq.KindProfileUpdate)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	var patch model.ProfilePatch
	require.NoError(t, pending[0].Decode(&patch))
	assert.Equal(t, "second", *patch.Bio)
	assert.Equal(t, "alice", *patch.Username)

	bad := "not-an-email"
	_, err = e.auth.UpdateProfile(ctx, model.ProfilePatch{Email: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuth_OnlineProfileNotOverwrittenByQueued(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.login(t, a)
	bodies := e.api.recordBodies("PUT /api/users/me", 1)

	older, newer := "offline bio", "online bio"
	_, err := e.auth.UpdateProfile(ctx, model.ProfilePatch{Bio: &older})
	require.NoError(t, err)
	e.monitor.Set(true)
	res, err := e.sync.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Retried)

	_, err = e.auth.UpdateProfile(ctx, model.ProfilePatch{Bio: &newer})
	require.NoError(t, err)

	e.clock.Set(t0.Add(time.Hour))
	_, err = e.sync.Drain(ctx)
	require.NoError(t, err)

	sent := bodies()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], newer)
	pending, err := e.sync.Queue().Pending(ctx, syncq.KindProfileUpdate)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAuth_SearchUsersExcludesSelf(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.seedUser(t, "b", "alina")
	e.seedUser(t, "c", "carol")
	e.login(t, a)

	found, err := e.auth.SearchUsers(ctx, "ALI")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].ID)

	found, err = e.auth.SearchUsers(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAuth_NotAuthenticated(t *testing.T) {
	e := newEnv(t, false)
	assert.ErrorIs(t, e.auth.FollowUser(context.Background(), "b"), ErrNotAuthenticated)
	u, err := e.auth.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}
