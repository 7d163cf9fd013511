package discuss

import (
	"context"
	"fmt"
	"time"
)

// Post is a single entry in an article's discussion: either a top-level
// comment (article reference set) or a reply (parent reference set).
type Post struct {
	// ID is the storage key and never leaves the process; PublicID is the
	// identifier clients see.
	ID              int64     `json:"-"`
	PublicID        string    `json:"id"`
	Content         string    `json:"content"`
	AuthorID        string    `json:"authorId"`
	ArticleID       *int64    `json:"-"`
	ParentID        *int64    `json:"-"`
	ArticlePublicID *string   `json:"articleId,omitempty"`
	ParentPublicID  *string   `json:"parentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type PostRepository interface {
	// Create validates the article and parent references and inserts the
	// record in a single transaction, filling in the internal ids. It must
	// not leave a row behind when either reference fails to resolve.
	Create(ctx context.Context, post *Post) (err error)
	FindByPublicID(ctx context.Context, publicID string) (post *Post, err error)
	Search(ctx context.Context, params SearchPostsParams) (posts []*Post, err error)
	UpdateContent(ctx context.Context, id int64, content string) (err error)
	Delete(ctx context.Context, id int64) (err error)
	CountReplies(ctx context.Context, id int64) (count int, err error)
	ListReplies(ctx context.Context, parentID int64) (posts []*Post, err error)
	ListTopLevelByArticle(ctx context.Context, articlePublicID string, offset, limit uint64) (posts []*Post, err error)
	// CountRepliesByParentIDs returns reply counts for all given posts in one
	// aggregate query.
	CountRepliesByParentIDs(ctx context.Context, parentIDs []int64) (counts map[int64]int, err error)
	// ResolveArticlePublicID walks the parent chain of a post up to the
	// article it ultimately belongs to.
	ResolveArticlePublicID(ctx context.Context, id int64) (articlePublicID string, err error)
}

// SearchPostsParams are the storage-level filters, AND-combined. The service
// layer translates the caller-facing onlyReplies flag into ParentPublicID.
type SearchPostsParams struct {
	ContentContains string
	ArticlePublicID string
	AuthorID        string
	PostPublicID    string
	ParentPublicID  string
	Offset          uint64
	Limit           uint64
}

type PostNotFoundError struct {
	PublicID string
}

func (err PostNotFoundError) Error() string {
	return fmt.Sprintf("post with id %q not found", err.PublicID)
}

// ArticleNotFoundError reports a post referencing an article that does not
// exist. Declared here as well as in the articles package so storage can
// signal it without importing the articles domain.
type ArticleNotFoundError struct {
	PublicID string
}

func (err ArticleNotFoundError) Error() string {
	return fmt.Sprintf("article with id %q not found", err.PublicID)
}

// InvalidLinkageError reports a post anchored to neither an article nor a
// parent post. Such a post would be unreachable in every thread view.
type InvalidLinkageError struct{}

func (err InvalidLinkageError) Error() string {
	return "post must be linked to an article or a parent post"
}

type EmptyContentError struct{}

func (err EmptyContentError) Error() string {
	return "post content must not be empty"
}

type InvalidFilterCombinationError struct {
	Reason string
}

func (err InvalidFilterCombinationError) Error() string {
	return fmt.Sprintf("invalid filter combination: %s", err.Reason)
}
