package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/internal/model"
)

var (
	benchNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	benchTTL = 24 * time.Hour
)

func newTestStorage(t *testing.T) (*Storage, kv.Store) {
	t.Helper()
	store := kv.NewMemoryStore()
	return NewStorage(store), store
}

func TestCollection_CorruptJSONIsEmpty(t *testing.T) {
	st, store := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyPosts, "{not json"))

	posts := NewPostRepository(st)
	list, err := posts.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// 下一次写入覆盖损坏的数据
	require.NoError(t, posts.Create(ctx, model.Post{ID: "p1", UserID: "u1"}))
	list, err = posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCollection_SaveReplacesByID(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	c := NewCollection[model.Photo](st, KeyPhotos)

	require.NoError(t, c.Save(ctx, model.Photo{ID: "a", WebPath: "/1"}))
	require.NoError(t, c.Save(ctx, model.Photo{ID: "b", WebPath: "/2"}))
	require.NoError(t, c.Save(ctx, model.Photo{ID: "a", WebPath: "/3"}))

	items, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/3", items[0].WebPath)
}

func TestCollection_UpdateMissing(t *testing.T) {
	st, _ := newTestStorage(t)
	_, err := NewPostRepository(st).Update(context.Background(), "nope", func(*model.Post) bool { return true })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_ConcurrentUpdatesAreNotLost(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	posts := NewPostRepository(st)
	require.NoError(t, posts.Create(ctx, model.Post{ID: "p1", UserID: "author"}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := posts.Update(ctx, "p1", func(p *model.Post) bool {
				var changed bool
				p.Likes, changed = model.AddToSet(p.Likes, fmt.Sprintf("u%d", i))
				return changed
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := posts.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, p.Likes, n)
}

func TestUserRepository_FollowSymmetry(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	users := NewUserRepository(st)
	require.NoError(t, users.Save(ctx, model.User{ID: "a", Username: "alice", Email: "a@x.io"}))
	require.NoError(t, users.Save(ctx, model.User{ID: "b", Username: "bob", Email: "b@x.io"}))
	require.NoError(t, users.SetCurrent(ctx, model.User{ID: "a", Username: "alice", PasswordHash: "secret"}))

	changed, err := users.Follow(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = users.Follow(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, changed)

	a, _ := users.GetByID(ctx, "a")
	b, _ := users.GetByID(ctx, "b")
	assert.Equal(t, []string{"b"}, a.Following)
	assert.Equal(t, []string{"a"}, b.Followers)

	cur, err := users.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, cur.Following)
	assert.Empty(t, cur.PasswordHash)

	_, err = users.Unfollow(ctx, "a", "b")
	require.NoError(t, err)
	a, _ = users.GetByID(ctx, "a")
	b, _ = users.GetByID(ctx, "b")
	assert.NotContains(t, a.Following, "b")
	assert.NotContains(t, b.Followers, "a")
}

func TestUserRepository_FollowUnknownFollower(t *testing.T) {
	st, _ := newTestStorage(t)
	_, err := NewUserRepository(st).Follow(context.Background(), "ghost", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_FindByLoginAndSession(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	users := NewUserRepository(st)
	require.NoError(t, users.Save(ctx, model.User{ID: "a", Username: "Alice", Email: "alice@x.io"}))

	u, err := users.FindByLogin(ctx, "ALICE@x.io")
	require.NoError(t, err)
	require.NotNil(t, u)
	u, err = users.FindByLogin(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)

	require.NoError(t, users.SetToken(ctx, "tok"))
	tok, ok, err := users.Token(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	require.NoError(t, users.ClearSession(ctx))
	_, ok, _ = users.Token(ctx)
	assert.False(t, ok)
	cur, err := users.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestStoryRepository_ListActivePrunes(t *testing.T) {
	st, store := newTestStorage(t)
	ctx := context.Background()
	stories := NewStoryRepository(st)
	t0 := benchNow

	require.NoError(t, stories.Create(ctx, model.Story{ID: "old", CreatedAt: t0.Add(-25 * time.Hour), ExpiresAt: t0.Add(-time.Hour)}))
	require.NoError(t, stories.Create(ctx, model.Story{ID: "new", CreatedAt: t0, ExpiresAt: t0.Add(benchTTL)}))

	active, err := stories.ListActive(ctx, t0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "new", active[0].ID)

	raw, _, err := store.Get(ctx, KeyStories)
	require.NoError(t, err)
	assert.NotContains(t, raw, `"old"`)

	// 到期时刻本身不可见
	active, err = stories.ListActive(ctx, t0.Add(benchTTL))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStoryRepository_Viewed(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	stories := NewStoryRepository(st)
	require.NoError(t, stories.MarkViewed(ctx, "s1"))
	require.NoError(t, stories.MarkViewed(ctx, "s1"))
	viewed, err := stories.Viewed(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"s1": true}, viewed)
}

func TestConversationRepository_FindOrCreateDirect(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	convs := NewConversationRepository(st)
	mk := func(id string) func() model.Conversation {
		return func() model.Conversation { return model.Conversation{ID: id, Participants: []string{"a", "b"}} }
	}

	c1, created, err := convs.FindOrCreateDirect(ctx, "a", "b", mk("c1"))
	require.NoError(t, err)
	assert.True(t, created)
	c2, created, err := convs.FindOrCreateDirect(ctx, "b", "a", mk("c2"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c1.ID, c2.ID)
}

func TestMessageRepository_MarkReadAndCount(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	msgs := NewMessageRepository(st)
	require.NoError(t, msgs.Create(ctx, model.Message{ID: "m1", ConversationID: "c1", SenderID: "b"}))
	require.NoError(t, msgs.Create(ctx, model.Message{ID: "m2", ConversationID: "c1", SenderID: "a"}))
	require.NoError(t, msgs.Create(ctx, model.Message{ID: "m3", ConversationID: "c2", SenderID: "b"}))

	n, err := msgs.CountUnread(ctx, []string{"c1", "c2"}, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = msgs.MarkRead(ctx, "c1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = msgs.CountUnread(ctx, []string{"c1", "c2"}, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMediaCache(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	cache := NewMediaCache(st)

	m, err := cache.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, cache.Put(ctx, model.Media{ID: "x", URL: "https://cdn/x.jpg"}))
	m, err = cache.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", m.URL)

	require.NoError(t, cache.Delete(ctx, "x"))
	m, _ = cache.Get(ctx, "x")
	assert.Nil(t, m)
}

func TestSettingsRepository(t *testing.T) {
	st, _ := newTestStorage(t)
	ctx := context.Background()
	s := NewSettingsRepository(st)

	on, err := s.Bool(ctx, KeyLocationEnabled)
	require.NoError(t, err)
	assert.False(t, on)
	require.NoError(t, s.SetBool(ctx, KeyLocationEnabled, true))
	on, _ = s.Bool(ctx, KeyLocationEnabled)
	assert.True(t, on)

	_, ok, err := s.LocationPrivacy(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.SetLocationPrivacy(ctx, model.LocationPrivacy{ShareWith: model.ShareEveryone, Precision: model.PrecisionCity}))
	p, ok, _ := s.LocationPrivacy(ctx)
	assert.True(t, ok)
	assert.Equal(t, model.ShareEveryone, p.ShareWith)
}
