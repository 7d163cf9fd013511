// Package articles manages the published articles that discussions attach to.
// The discuss package only depends on it through its Directory role: checking
// that an article referenced by a new post actually exists.
package articles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	articleRepo ArticleRepository
}

func NewService(articleRepo ArticleRepository) *Service {
	return &Service{
		articleRepo: articleRepo,
	}
}

type CreateArticleRequest struct {
	Title     string
	Slug      string
	Content   string
	Published bool
	AuthorID  string
}

func (svc *Service) CreateArticle(ctx context.Context, req CreateArticleRequest) (*Article, error) {
	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Title)
	}

	_, err := svc.articleRepo.FindBySlug(ctx, slug)
	if err == nil {
		return nil, &SlugConflictError{Slug: slug}
	}

	var articleNotFoundErr *ArticleNotFoundError
	if !errors.As(err, &articleNotFoundErr) {
		return nil, fmt.Errorf("failed to check slug uniqueness: %w", err)
	}

	article := &Article{
		PublicID:  uuid.NewString(),
		Title:     req.Title,
		Slug:      slug,
		Content:   req.Content,
		Published: req.Published,
		AuthorID:  req.AuthorID,
		CreatedAt: time.Now(),
	}

	err = svc.articleRepo.Insert(ctx, article)
	if err != nil {
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}

	return article, nil
}

func (svc *Service) GetArticle(ctx context.Context, publicID string) (*Article, error) {
	article, err := svc.articleRepo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}

	return article, nil
}

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 500
)

type SearchArticlesRequest struct {
	Title    string
	Slug     string
	AuthorID string
	Page     int
	Limit    int
}

// SearchArticles lists published articles newest first. The ordering is the
// opposite of comment search on purpose: article listings surface recent
// writing, comment listings read as a conversation.
func (svc *Service) SearchArticles(ctx context.Context, req SearchArticlesRequest) ([]*Article, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}

	limit := req.Limit
	if limit < 1 {
		limit = defaultSearchLimit
	}

	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	params := SearchArticlesParams{
		Title:    req.Title,
		Slug:     req.Slug,
		AuthorID: req.AuthorID,
		Offset:   uint64(page-1) * uint64(limit),
		Limit:    uint64(limit),
	}

	found, err := svc.articleRepo.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}

	return found, nil
}

// Exists reports whether an article with the given public id exists.
func (svc *Service) Exists(ctx context.Context, publicID string) (bool, error) {
	exists, err := svc.articleRepo.ExistsByPublicID(ctx, publicID)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence: %w", err)
	}

	return exists, nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)

func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = nonSlugChars.ReplaceAllString(slug, "")

	return strings.Trim(slug, "-")
}
