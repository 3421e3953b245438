package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_LikeIsIdempotent(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	e.login(t, a)

	p, err := e.posts.CreatePost(ctx, "/img/1.jpg", "sunrise")
	require.NoError(t, err)

	_, err = e.posts.LikePost(ctx, p.ID)
	require.NoError(t, err)
	liked, err := e.posts.LikePost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, liked.Likes)

	unliked, err := e.posts.UnlikePost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, unliked.Likes)

	_, err = e.posts.LikePost(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPost_FeedAndComments(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	b := e.seedUser(t, "b", "bob")
	e.seedUser(t, "c", "carol")

	e.login(t, b)
	_, err := e.posts.CreatePost(ctx, "/img/b.jpg", "from bob")
	require.NoError(t, err)
	e.login(t, e.mustUser(t, "c"))
	_, err = e.posts.CreatePost(ctx, "/img/c.jpg", "from carol")
	require.NoError(t, err)

	e.login(t, a)
	require.NoError(t, e.auth.FollowUser(ctx, "b"))
	e.clock.Set(t0.Add(time.Minute))
	mine, err := e.posts.CreatePost(ctx, "/img/a.jpg", "from alice")
	require.NoError(t, err)

	feed, err := e.posts.GetFeedPosts(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, mine.ID, feed[0].ID)
	assert.Equal(t, "bob", feed[1].User.Username)

	_, err = e.posts.AddComment(ctx, mine.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.posts.AddComment(ctx, mine.ID, "nice")
	require.NoError(t, err)
	comments, err := e.posts.GetCommentsWithUsers(ctx, mine.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.NotNil(t, comments[0].User)
	assert.Equal(t, "alice", comments[0].User.Username)
}

func TestPost_DeleteOnlyByAuthor(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	a := e.seedUser(t, "a", "alice")
	b := e.seedUser(t, "b", "bob")

	e.login(t, a)
	p, err := e.posts.CreatePost(ctx, "/img/1.jpg", "")
	require.NoError(t, err)

	e.login(t, b)
	_, err = e.posts.DeletePost(ctx, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	e.login(t, a)
	ok, err := e.posts.DeletePost(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.posts.DeletePost(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
