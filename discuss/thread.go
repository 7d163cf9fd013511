package discuss

import (
	"context"
	"fmt"
)

// Composer assembles read-side views of a discussion. It never mutates and
// never checks authorization: article threads are public.
type Composer struct {
	postRepo PostRepository
}

func NewComposer(postRepo PostRepository) *Composer {
	return &Composer{
		postRepo: postRepo,
	}
}

type Thread struct {
	Post    *Post   `json:"post"`
	Replies []*Post `json:"replies"`
}

// GetThread returns a post together with its direct replies, oldest first.
func (c *Composer) GetThread(ctx context.Context, postPublicID string) (*Thread, error) {
	post, err := c.postRepo.FindByPublicID(ctx, postPublicID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	replies, err := c.postRepo.ListReplies(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}

	return &Thread{Post: post, Replies: replies}, nil
}

type ArticleThreadItem struct {
	*Post
	ReplyCount int `json:"replyCount"`
}

// GetArticleThread returns one page of an article's top-level comments,
// oldest first, each with its reply count. The counts come from a single
// aggregate query over the page, not one query per post.
func (c *Composer) GetArticleThread(ctx context.Context, articlePublicID string, page, limit int) ([]*ArticleThreadItem, error) {
	offset, pageLimit := pageToOffsetLimit(page, limit)

	posts, err := c.postRepo.ListTopLevelByArticle(ctx, articlePublicID, offset, pageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list article posts: %w", err)
	}

	items := make([]*ArticleThreadItem, len(posts))

	if len(posts) == 0 {
		return items, nil
	}

	ids := make([]int64, len(posts))
	for i, post := range posts {
		ids[i] = post.ID
	}

	counts, err := c.postRepo.CountRepliesByParentIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count replies: %w", err)
	}

	for i, post := range posts {
		items[i] = &ArticleThreadItem{Post: post, ReplyCount: counts[post.ID]}
	}

	return items, nil
}
