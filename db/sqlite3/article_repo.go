package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/backtalk/articles"
)

const tableArticles = "articles"

type ArticleRepository struct {
	db *sql.DB
}

var _ articles.ArticleRepository = (*ArticleRepository)(nil)

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

const (
	articleFieldID        = "id"
	articleFieldPublicID  = "public_id"
	articleFieldTitle     = "title"
	articleFieldSlug      = "slug"
	articleFieldContent   = "content"
	articleFieldPublished = "published"
	articleFieldAuthorID  = "author_id"
	articleFieldCreatedAt = "created_at"
)

func articleColumns() []string {
	return []string{
		articleFieldID,
		articleFieldPublicID,
		articleFieldTitle,
		articleFieldSlug,
		articleFieldContent,
		articleFieldPublished,
		articleFieldAuthorID,
		articleFieldCreatedAt,
	}
}

func scanArticle(row sq.RowScanner) (*articles.Article, error) {
	var article articles.Article

	err := row.Scan(
		&article.ID,
		&article.PublicID,
		&article.Title,
		&article.Slug,
		&article.Content,
		&article.Published,
		&article.AuthorID,
		&article.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &article, nil
}

func (repo *ArticleRepository) Insert(ctx context.Context, article *articles.Article) error {
	q := sq.Insert(tableArticles).
		Columns(articleColumns()[1:]...).
		Values(
			article.PublicID,
			article.Title,
			article.Slug,
			article.Content,
			article.Published,
			article.AuthorID,
			article.CreatedAt,
		)

	res, err := q.RunWith(repo.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted id: %w", err)
	}

	article.ID = id

	return nil
}

func (repo *ArticleRepository) FindByPublicID(ctx context.Context, publicID string) (*articles.Article, error) {
	return repo.findOne(ctx, sq.Eq{articleFieldPublicID: publicID}, publicID)
}

func (repo *ArticleRepository) FindBySlug(ctx context.Context, slug string) (*articles.Article, error) {
	return repo.findOne(ctx, sq.Eq{articleFieldSlug: slug}, slug)
}

func (repo *ArticleRepository) findOne(ctx context.Context, pred any, ref string) (*articles.Article, error) {
	q := sq.Select(articleColumns()...).
		From(tableArticles).
		Where(pred)

	row := q.RunWith(repo.db).QueryRowContext(ctx)

	article, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &articles.ArticleNotFoundError{PublicID: ref}
		}

		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	return article, nil
}

func (repo *ArticleRepository) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	q := sq.Select("1").
		From(tableArticles).
		Where(sq.Eq{articleFieldPublicID: publicID})

	var one int

	err := q.RunWith(repo.db).QueryRowContext(ctx).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("failed to query article existence: %w", err)
	}

	return true, nil
}

// Search lists published articles newest first.
func (repo *ArticleRepository) Search(ctx context.Context, params articles.SearchArticlesParams) ([]*articles.Article, error) {
	q := sq.Select(articleColumns()...).
		From(tableArticles).
		Where(sq.Eq{articleFieldPublished: true}).
		OrderBy(articleFieldCreatedAt+" DESC", articleFieldID+" DESC").
		Offset(params.Offset).
		Limit(params.Limit)

	if params.Title != "" {
		q = q.Where(sq.Expr("LOWER("+articleFieldTitle+") LIKE ?", "%"+strings.ToLower(params.Title)+"%"))
	}

	if params.Slug != "" {
		q = q.Where(sq.Eq{articleFieldSlug: params.Slug})
	}

	if params.AuthorID != "" {
		q = q.Where(sq.Eq{articleFieldAuthorID: params.AuthorID})
	}

	rows, err := q.RunWith(repo.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	found := make([]*articles.Article, 0)

	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}

		found = append(found, article)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return found, nil
}
