package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/backtalk/discuss"
)

const tablePosts = "posts"

type PostRepository struct {
	db *sql.DB
}

var _ discuss.PostRepository = (*PostRepository)(nil)

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

const (
	postFieldID        = "id"
	postFieldPublicID  = "public_id"
	postFieldContent   = "content"
	postFieldAuthorID  = "author_id"
	postFieldArticleID = "article_id"
	postFieldParentID  = "parent_id"
	postFieldCreatedAt = "created_at"
)

// postSelectColumns selects a post together with the public ids of its
// article and parent, so a single query yields a complete Post.
func postSelectColumns() []string {
	return []string{
		"p.id",
		"p.public_id",
		"p.content",
		"p.author_id",
		"p.article_id",
		"p.parent_id",
		"a.public_id AS article_public_id",
		"pp.public_id AS parent_public_id",
		"p.created_at",
	}
}

func selectPosts() sq.SelectBuilder {
	return sq.Select(postSelectColumns()...).
		From(tablePosts + " AS p").
		LeftJoin(tableArticles + " AS a ON a.id = p.article_id").
		LeftJoin(tablePosts + " AS pp ON pp.id = p.parent_id")
}

func scanPost(row sq.RowScanner) (*discuss.Post, error) {
	var post discuss.Post

	err := row.Scan(
		&post.ID,
		&post.PublicID,
		&post.Content,
		&post.AuthorID,
		&post.ArticleID,
		&post.ParentID,
		&post.ArticlePublicID,
		&post.ParentPublicID,
		&post.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &post, nil
}

// Create resolves the article and parent references and inserts the post in
// one transaction, so a reference that disappears concurrently can never
// leave a dangling post behind.
func (repo *PostRepository) Create(ctx context.Context, post *discuss.Post) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		err := tx.Rollback()
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "failed to rollback transaction", "error", err)
		}
	}()

	if post.ArticlePublicID != nil {
		var articleID int64

		err = sq.Select(articleFieldID).
			From(tableArticles).
			Where(sq.Eq{articleFieldPublicID: *post.ArticlePublicID}).
			RunWith(tx).
			QueryRowContext(ctx).
			Scan(&articleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &discuss.ArticleNotFoundError{PublicID: *post.ArticlePublicID}
			}

			return fmt.Errorf("failed to resolve article reference: %w", err)
		}

		post.ArticleID = &articleID
	}

	if post.ParentPublicID != nil {
		var parentID int64

		err = sq.Select(postFieldID).
			From(tablePosts).
			Where(sq.Eq{postFieldPublicID: *post.ParentPublicID}).
			RunWith(tx).
			QueryRowContext(ctx).
			Scan(&parentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &discuss.PostNotFoundError{PublicID: *post.ParentPublicID}
			}

			return fmt.Errorf("failed to resolve parent reference: %w", err)
		}

		post.ParentID = &parentID
	}

	res, err := sq.Insert(tablePosts).
		Columns(
			postFieldPublicID,
			postFieldContent,
			postFieldAuthorID,
			postFieldArticleID,
			postFieldParentID,
			postFieldCreatedAt,
		).
		Values(
			post.PublicID,
			post.Content,
			post.AuthorID,
			post.ArticleID,
			post.ParentID,
			post.CreatedAt,
		).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted id: %w", err)
	}

	post.ID = id

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (repo *PostRepository) FindByPublicID(ctx context.Context, publicID string) (*discuss.Post, error) {
	q := selectPosts().Where(sq.Eq{"p.public_id": publicID})

	post, err := scanPost(q.RunWith(repo.db).QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &discuss.PostNotFoundError{PublicID: publicID}
		}

		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	return post, nil
}

// Search applies the AND-combined filters and returns posts oldest first.
func (repo *PostRepository) Search(ctx context.Context, params discuss.SearchPostsParams) ([]*discuss.Post, error) {
	q := selectPosts().
		OrderBy("p.created_at ASC", "p.id ASC").
		Offset(params.Offset).
		Limit(params.Limit)

	if params.ContentContains != "" {
		q = q.Where(sq.Expr("LOWER(p.content) LIKE ?", "%"+strings.ToLower(params.ContentContains)+"%"))
	}

	if params.ArticlePublicID != "" {
		q = q.Where(sq.Eq{"a.public_id": params.ArticlePublicID})
	}

	if params.AuthorID != "" {
		q = q.Where(sq.Eq{"p.author_id": params.AuthorID})
	}

	if params.PostPublicID != "" {
		q = q.Where(sq.Eq{"p.public_id": params.PostPublicID})
	}

	if params.ParentPublicID != "" {
		q = q.Where(sq.Eq{"pp.public_id": params.ParentPublicID})
	}

	return repo.queryPosts(ctx, q)
}

func (repo *PostRepository) UpdateContent(ctx context.Context, id int64, content string) error {
	res, err := sq.Update(tablePosts).
		Set(postFieldContent, content).
		Where(sq.Eq{postFieldID: id}).
		RunWith(repo.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec update: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return &discuss.PostNotFoundError{}
	}

	return nil
}

func (repo *PostRepository) Delete(ctx context.Context, id int64) error {
	res, err := sq.Delete(tablePosts).
		Where(sq.Eq{postFieldID: id}).
		RunWith(repo.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec delete: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return &discuss.PostNotFoundError{}
	}

	return nil
}

func (repo *PostRepository) CountReplies(ctx context.Context, id int64) (int, error) {
	var count int

	err := sq.Select("COUNT(*)").
		From(tablePosts).
		Where(sq.Eq{postFieldParentID: id}).
		RunWith(repo.db).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}

	return count, nil
}

func (repo *PostRepository) ListReplies(ctx context.Context, parentID int64) ([]*discuss.Post, error) {
	q := selectPosts().
		Where(sq.Eq{"p.parent_id": parentID}).
		OrderBy("p.created_at ASC", "p.id ASC")

	return repo.queryPosts(ctx, q)
}

func (repo *PostRepository) ListTopLevelByArticle(ctx context.Context, articlePublicID string, offset, limit uint64) ([]*discuss.Post, error) {
	q := selectPosts().
		Where(sq.Eq{"a.public_id": articlePublicID}).
		Where(sq.Eq{"p.parent_id": nil}).
		OrderBy("p.created_at ASC", "p.id ASC").
		Offset(offset).
		Limit(limit)

	return repo.queryPosts(ctx, q)
}

// CountRepliesByParentIDs counts direct replies for all given posts with a
// single grouped query.
func (repo *PostRepository) CountRepliesByParentIDs(ctx context.Context, parentIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(parentIDs))

	if len(parentIDs) == 0 {
		return counts, nil
	}

	q := sq.Select(postFieldParentID, "COUNT(*)").
		From(tablePosts).
		Where(sq.Eq{postFieldParentID: parentIDs}).
		GroupBy(postFieldParentID)

	rows, err := q.RunWith(repo.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query reply counts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			parentID int64
			count    int
		)

		err = rows.Scan(&parentID, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reply count: %w", err)
		}

		counts[parentID] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return counts, nil
}

// ResolveArticlePublicID follows the parent chain of a post up to the row
// that carries an article reference. Traversal happens in the database with
// a recursive CTE instead of one query per hop.
func (repo *PostRepository) ResolveArticlePublicID(ctx context.Context, id int64) (string, error) {
	const query = `
WITH RECURSIVE chain (id, article_id, parent_id) AS (
    SELECT id, article_id, parent_id FROM posts WHERE id = ?
    UNION ALL
    SELECT p.id, p.article_id, p.parent_id
    FROM posts p
             JOIN chain c ON p.id = c.parent_id
)
SELECT a.public_id
FROM chain
         JOIN articles a ON a.id = chain.article_id
WHERE chain.article_id IS NOT NULL
LIMIT 1`

	var articlePublicID string

	err := repo.db.QueryRowContext(ctx, query, id).Scan(&articlePublicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", &discuss.ArticleNotFoundError{}
		}

		return "", fmt.Errorf("failed to resolve article: %w", err)
	}

	return articlePublicID, nil
}

func (repo *PostRepository) queryPosts(ctx context.Context, q sq.SelectBuilder) ([]*discuss.Post, error) {
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

	posts := make([]*discuss.Post, 0)

	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		posts = append(posts, post)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return posts, nil
}
