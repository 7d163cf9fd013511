package discuss_test

import (
	"context"
	"testing"

	"github.com/nasermirzaei89/backtalk/discuss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetThread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, repo, _ := newTestService("article-a")
	composer := discuss.NewComposer(repo)

	parent, err := svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "parent", AuthorID: "user-1", ArticleID: "article-a"})
	require.NoError(t, err)

	first, err := svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "first reply", AuthorID: "user-2", ParentID: parent.PublicID})
	require.NoError(t, err)

	second, err := svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "second reply", AuthorID: "user-3", ParentID: parent.PublicID})
	require.NoError(t, err)

	thread, err := composer.GetThread(ctx, parent.PublicID)
	require.NoError(t, err)

	assert.Equal(t, parent.PublicID, thread.Post.PublicID)
	require.Len(t, thread.Replies, 2)
	assert.Equal(t, first.PublicID, thread.Replies[0].PublicID)
	assert.Equal(t, second.PublicID, thread.Replies[1].PublicID)

	t.Run("unknown post fails", func(t *testing.T) {
		_, err := composer.GetThread(ctx, "missing")
		require.Error(t, err)

		postNotFoundErr := &discuss.PostNotFoundError{}
		assert.ErrorAs(t, err, &postNotFoundErr)
	})
}

func TestGetArticleThread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, repo, _ := newTestService("article-a", "article-b")
	composer := discuss.NewComposer(repo)

	p1, err := svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "p1", AuthorID: "user-1", ArticleID: "article-a"})
	require.NoError(t, err)

	p2, err := svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "p2", AuthorID: "user-2", ArticleID: "article-a"})
	require.NoError(t, err)

	for range 3 {
		_, err = svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "reply to p1", AuthorID: "user-3", ParentID: p1.PublicID})
		require.NoError(t, err)
	}

	// Another article's discussion must not leak into the counts.
	_, err = svc.CreatePost(ctx, discuss.CreatePostRequest{Content: "elsewhere", AuthorID: "user-4", ArticleID: "article-b"})
	require.NoError(t, err)

	items, err := composer.GetArticleThread(ctx, "article-a", 1, 10)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, p1.PublicID, items[0].PublicID)
	assert.Equal(t, 3, items[0].ReplyCount)
	assert.Equal(t, p2.PublicID, items[1].PublicID)
	assert.Equal(t, 0, items[1].ReplyCount)

	// Reply counts come from one aggregate query per page.
	assert.Equal(t, 1, repo.countBatchCalls)

	t.Run("empty article yields empty page without counting", func(t *testing.T) {
		countBatchCallsBefore := repo.countBatchCalls

		items, err := composer.GetArticleThread(ctx, "article-empty", 1, 10)
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.Equal(t, countBatchCallsBefore, repo.countBatchCalls)
	})

	t.Run("pagination slices the top level", func(t *testing.T) {
		items, err := composer.GetArticleThread(ctx, "article-a", 2, 1)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, p2.PublicID, items[0].PublicID)
	})
}
