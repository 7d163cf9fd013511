// Package discuss implements the threaded discussion on published articles:
// creating comments and replies, authorization-gated edits and deletions with
// a tombstone-or-purge policy, and filtered search. Mutations are announced
// to live viewers through the Broadcaster after they commit.
package discuss

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nasermirzaei89/backtalk/identity"
)

// DeletedContent is the tombstone marker. A post whose content equals it has
// been removed but kept so its replies stay attached; deleting it again is a
// no-op.
const DeletedContent = "deleted"

// ArticleDirectory is the narrow contract the discussion needs from the
// articles module.
type ArticleDirectory interface {
	Exists(ctx context.Context, articlePublicID string) (exists bool, err error)
}

// Broadcaster fans a committed mutation out to live viewers of an article's
// discussion. Implementations must not fail the mutation; delivery is
// best-effort.
type Broadcaster interface {
	CommentCreated(ctx context.Context, articlePublicID string, post *Post)
	ReplyCreated(ctx context.Context, articlePublicID string, parentPublicID string, post *Post)
	CommentUpdated(ctx context.Context, articlePublicID string, post *Post)
}

type Service struct {
	postRepo    PostRepository
	articleDir  ArticleDirectory
	broadcaster Broadcaster
}

func NewService(postRepo PostRepository, articleDir ArticleDirectory, broadcaster Broadcaster) *Service {
	return &Service{
		postRepo:    postRepo,
		articleDir:  articleDir,
		broadcaster: broadcaster,
	}
}

type CreatePostRequest struct {
	Content  string
	AuthorID string
	// ArticleID anchors a top-level comment, ParentID anchors a reply.
	// At least one must be set.
	ArticleID string
	ParentID  string
}

func (svc *Service) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, &EmptyContentError{}
	}

	if req.ArticleID == "" && req.ParentID == "" {
		return nil, &InvalidLinkageError{}
	}

	if req.ArticleID != "" {
		exists, err := svc.articleDir.Exists(ctx, req.ArticleID)
		if err != nil {
			return nil, fmt.Errorf("failed to check article existence: %w", err)
		}

		if !exists {
			return nil, &ArticleNotFoundError{PublicID: req.ArticleID}
		}
	}

	post := &Post{
		PublicID:  uuid.NewString(),
		Content:   req.Content,
		AuthorID:  req.AuthorID,
		CreatedAt: time.Now(),
	}

	if req.ArticleID != "" {
		post.ArticlePublicID = &req.ArticleID
	}

	if req.ParentID != "" {
		post.ParentPublicID = &req.ParentID
	}

	// The repository re-validates both references inside the insert
	// transaction, so a concurrent article or parent removal cannot leave a
	// dangling post behind the directory check above.
	err := svc.postRepo.Create(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	svc.announceCreated(ctx, post)

	return post, nil
}

func (svc *Service) GetPost(ctx context.Context, publicID string) (*Post, error) {
	post, err := svc.postRepo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return post, nil
}

type SearchPostsRequest struct {
	Content   string
	ArticleID string
	AuthorID  string
	PostID    string
	// OnlyReplies turns PostID into a parent filter: the result is the set of
	// direct replies to that post.
	OnlyReplies bool
	Page        int
	Limit       int
}

// SearchPosts lists posts oldest first, so a filtered thread still reads
// top-to-bottom as a conversation.
func (svc *Service) SearchPosts(ctx context.Context, req SearchPostsRequest) ([]*Post, error) {
	if req.OnlyReplies && req.PostID == "" {
		return nil, &InvalidFilterCombinationError{Reason: "onlyReplies requires postId"}
	}

	offset, limit := pageToOffsetLimit(req.Page, req.Limit)

	params := SearchPostsParams{
		ContentContains: req.Content,
		ArticlePublicID: req.ArticleID,
		AuthorID:        req.AuthorID,
		Offset:          offset,
		Limit:           limit,
	}

	if req.OnlyReplies {
		params.ParentPublicID = req.PostID
	} else {
		params.PostPublicID = req.PostID
	}

	posts, err := svc.postRepo.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}

	return posts, nil
}

type UpdatePostRequest struct {
	PostID    string
	Principal identity.Principal
	Content   string
}

func (svc *Service) UpdatePost(ctx context.Context, req UpdatePostRequest) (*Post, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, &EmptyContentError{}
	}

	post, err := svc.postRepo.FindByPublicID(ctx, req.PostID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	if !CanMutate(post, req.Principal) {
		return nil, &ForbiddenError{PrincipalID: req.Principal.ID, PostID: req.PostID}
	}

	err = svc.postRepo.UpdateContent(ctx, post.ID, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to update post content: %w", err)
	}

	post.Content = req.Content

	svc.announceUpdated(ctx, post)

	return post, nil
}

type DeletePostRequest struct {
	PostID    string
	Principal identity.Principal
}

// DeletePost removes a post. A post that already has replies is tombstoned
// instead of removed, so the replies keep a valid parent; a childless post is
// deleted outright.
func (svc *Service) DeletePost(ctx context.Context, req DeletePostRequest) error {
	post, err := svc.postRepo.FindByPublicID(ctx, req.PostID)
	if err != nil {
		return fmt.Errorf("failed to find post: %w", err)
	}

	if !CanMutate(post, req.Principal) {
		return &ForbiddenError{PrincipalID: req.Principal.ID, PostID: req.PostID}
	}

	if post.Content == DeletedContent {
		return nil
	}

	replyCount, err := svc.postRepo.CountReplies(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("failed to count replies: %w", err)
	}

	if replyCount == 0 {
		err = svc.postRepo.Delete(ctx, post.ID)
		if err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}

		return nil
	}

	err = svc.postRepo.UpdateContent(ctx, post.ID, DeletedContent)
	if err != nil {
		return fmt.Errorf("failed to tombstone post: %w", err)
	}

	post.Content = DeletedContent

	svc.announceUpdated(ctx, post)

	return nil
}

// ResolveArticle returns the public id of the article a post belongs to,
// following the parent chain when the post is a reply.
func (svc *Service) ResolveArticle(ctx context.Context, post *Post) (string, error) {
	if post.ArticlePublicID != nil {
		return *post.ArticlePublicID, nil
	}

	articlePublicID, err := svc.postRepo.ResolveArticlePublicID(ctx, post.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve article for post: %w", err)
	}

	return articlePublicID, nil
}

func (svc *Service) announceCreated(ctx context.Context, post *Post) {
	articlePublicID, err := svc.ResolveArticle(ctx, post)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve article room for new post", "postId", post.PublicID, "error", err)

		return
	}

	if post.ParentPublicID == nil {
		svc.broadcaster.CommentCreated(ctx, articlePublicID, post)

		return
	}

	svc.broadcaster.ReplyCreated(ctx, articlePublicID, *post.ParentPublicID, post)
}

func (svc *Service) announceUpdated(ctx context.Context, post *Post) {
	articlePublicID, err := svc.ResolveArticle(ctx, post)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve article room for updated post", "postId", post.PublicID, "error", err)

		return
	}

	svc.broadcaster.CommentUpdated(ctx, articlePublicID, post)
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 500
)

func pageToOffsetLimit(page, limit int) (uint64, uint64) {
	if page < 1 {
		page = 1
	}

	if limit < 1 {
		limit = defaultPageLimit
	}

	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return uint64(page-1) * uint64(limit), uint64(limit)
}
