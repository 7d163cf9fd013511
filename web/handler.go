// Package web exposes the discussion backend as a JSON HTTP API plus the
// websocket stream under /live.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/nasermirzaei89/backtalk/articles"
	"github.com/nasermirzaei89/backtalk/discuss"
	"github.com/nasermirzaei89/backtalk/identity"
)

type Handler struct {
	mux         *http.ServeMux
	handler     http.Handler
	articlesSvc *articles.Service
	discussSvc  *discuss.Service
	composer    *discuss.Composer
	tokens      *identity.TokenManager
	liveHandler http.Handler
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(
	articlesSvc *articles.Service,
	discussSvc *discuss.Service,
	composer *discuss.Composer,
	tokens *identity.TokenManager,
	liveHandler http.Handler,
) *Handler {
	h := &Handler{
		mux:         nil,
		handler:     nil,
		articlesSvc: articlesSvc,
		discussSvc:  discussSvc,
		composer:    composer,
		tokens:      tokens,
		liveHandler: liveHandler,
	}

	{
		h.mux = &http.ServeMux{}
		h.handler = h.mux

		h.registerRoutes()
	}

	{
		h.handler = h.authMiddleware(h.handler)
		h.handler = recoverMiddleware(h.handler)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.Handle("POST /articles", h.AuthenticatedOnly(h.HandleCreateArticle()))
	h.mux.Handle("GET /articles", h.HandleSearchArticles())
	h.mux.Handle("GET /articles/{articleId}", h.HandleGetArticle())
	h.mux.Handle("GET /articles/{articleId}/thread", h.HandleGetArticleThread())

	h.mux.Handle("POST /posts", h.AuthenticatedOnly(h.HandleCreatePost()))
	h.mux.Handle("GET /posts", h.HandleSearchPosts())
	h.mux.Handle("GET /posts/{postId}", h.HandleGetPost())
	h.mux.Handle("GET /posts/{postId}/thread", h.HandleGetPostThread())
	h.mux.Handle("PATCH /posts/{postId}", h.AuthenticatedOnly(h.HandleUpdatePost()))
	h.mux.Handle("DELETE /posts/{postId}", h.AuthenticatedOnly(h.HandleDeletePost()))

	h.mux.Handle("GET /live", h.liveHandler)
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func(ctx context.Context) {
			if err := recover(); err != nil {
				slog.ErrorContext(ctx, "recovered from panic", "error", err, "stack", string(debug.Stack()))

				http.Error(w, "internal error occurred", http.StatusInternalServerError)
			}
		}(r.Context())

		next.ServeHTTP(w, r)
	})
}

type createArticleRequest struct {
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Content   string `json:"content"`
	Published bool   `json:"published"`
}

func (h *Handler) HandleCreateArticle() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createArticleRequest

		if err := decodeJSON(r.Body, &req); err != nil {
			h.respondError(w, r, err)

			return
		}

		principal, _ := principalFromRequest(r)

		article, err := h.articlesSvc.CreateArticle(r.Context(), articles.CreateArticleRequest{
			Title:     req.Title,
			Slug:      req.Slug,
			Content:   req.Content,
			Published: req.Published,
			AuthorID:  principal.ID,
		})
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusCreated, article)
	})
}

func (h *Handler) HandleSearchArticles() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		found, err := h.articlesSvc.SearchArticles(r.Context(), articles.SearchArticlesRequest{
			Title:    query.Get("title"),
			Slug:     query.Get("slug"),
			AuthorID: query.Get("authorId"),
			Page:     intQueryParam(query.Get("page")),
			Limit:    intQueryParam(query.Get("limit")),
		})
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, found)
	})
}

func (h *Handler) HandleGetArticle() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		article, err := h.articlesSvc.GetArticle(r.Context(), r.PathValue("articleId"))
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, article)
	})
}

func (h *Handler) HandleGetArticleThread() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		thread, err := h.composer.GetArticleThread(
			r.Context(),
			r.PathValue("articleId"),
			intQueryParam(query.Get("page")),
			intQueryParam(query.Get("limit")),
		)
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, thread)
	})
}

type createPostRequest struct {
	Content   string `json:"content"`
	ArticleID string `json:"articleId"`
	ParentID  string `json:"parentId"`
}

func (h *Handler) HandleCreatePost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createPostRequest

		if err := decodeJSON(r.Body, &req); err != nil {
			h.respondError(w, r, err)

			return
		}

		principal, _ := principalFromRequest(r)

		post, err := h.discussSvc.CreatePost(r.Context(), discuss.CreatePostRequest{
			Content:   req.Content,
			AuthorID:  principal.ID,
			ArticleID: req.ArticleID,
			ParentID:  req.ParentID,
		})
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusCreated, post)
	})
}

func (h *Handler) HandleSearchPosts() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		posts, err := h.discussSvc.SearchPosts(r.Context(), discuss.SearchPostsRequest{
			Content:     query.Get("content"),
			ArticleID:   query.Get("articleId"),
			AuthorID:    query.Get("authorId"),
			PostID:      query.Get("postId"),
			OnlyReplies: query.Get("onlyReplies") == "true",
			Page:        intQueryParam(query.Get("page")),
			Limit:       intQueryParam(query.Get("limit")),
		})
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, posts)
	})
}

func (h *Handler) HandleGetPost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		post, err := h.discussSvc.GetPost(r.Context(), r.PathValue("postId"))
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, post)
	})
}

func (h *Handler) HandleGetPostThread() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		thread, err := h.composer.GetThread(r.Context(), r.PathValue("postId"))
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, thread)
	})
}

type updatePostRequest struct {
	Content string `json:"content"`
}

func (h *Handler) HandleUpdatePost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req updatePostRequest

		if err := decodeJSON(r.Body, &req); err != nil {
			h.respondError(w, r, err)

			return
		}

		principal, _ := principalFromRequest(r)

		post, err := h.discussSvc.UpdatePost(r.Context(), discuss.UpdatePostRequest{
			PostID:    r.PathValue("postId"),
			Principal: principal,
			Content:   req.Content,
		})
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		h.respondJSON(w, r, http.StatusOK, post)
	})
}

func (h *Handler) HandleDeletePost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := principalFromRequest(r)

		err := h.discussSvc.DeletePost(r.Context(), discuss.DeletePostRequest{
			PostID:    r.PathValue("postId"),
			Principal: principal,
		})
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

type malformedBodyError struct {
	cause error
}

func (err malformedBodyError) Error() string {
	return fmt.Sprintf("malformed request body: %s", err.cause)
}

func decodeJSON(body io.Reader, target any) error {
	err := json.NewDecoder(body).Decode(target)
	if err != nil {
		return &malformedBodyError{cause: err}
	}

	return nil
}

func intQueryParam(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}

	return n
}
