package articles

import (
	"context"
	"fmt"
	"time"
)

type Article struct {
	// ID is the storage key and never leaves the process.
	ID        int64     `json:"-"`
	PublicID  string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

type ArticleRepository interface {
	Insert(ctx context.Context, article *Article) (err error)
	FindByPublicID(ctx context.Context, publicID string) (article *Article, err error)
	FindBySlug(ctx context.Context, slug string) (article *Article, err error)
	ExistsByPublicID(ctx context.Context, publicID string) (exists bool, err error)
	Search(ctx context.Context, params SearchArticlesParams) (articles []*Article, err error)
}

type SearchArticlesParams struct {
	Title    string
	Slug     string
	AuthorID string
	Offset   uint64
	Limit    uint64
}

type ArticleNotFoundError struct {
	PublicID string
}

func (err ArticleNotFoundError) Error() string {
	return fmt.Sprintf("article with id %q not found", err.PublicID)
}

type SlugConflictError struct {
	Slug string
}

func (err SlugConflictError) Error() string {
	return fmt.Sprintf("article with slug %q already exists", err.Slug)
}
