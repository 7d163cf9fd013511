package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nasermirzaei89/backtalk/articles"
	"github.com/nasermirzaei89/backtalk/discuss"
	"github.com/nasermirzaei89/backtalk/identity"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)

		message = "internal error occurred"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	encodeErr := json.NewEncoder(w).Encode(errorResponse{Error: message})
	if encodeErr != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response", "error", encodeErr)
	}
}

func statusFromError(err error) int {
	var (
		unauthenticatedErr   *identity.UnauthenticatedError
		forbiddenErr         *discuss.ForbiddenError
		postNotFoundErr      *discuss.PostNotFoundError
		postArticleMissing   *discuss.ArticleNotFoundError
		articleNotFoundErr   *articles.ArticleNotFoundError
		invalidLinkageErr    *discuss.InvalidLinkageError
		emptyContentErr      *discuss.EmptyContentError
		invalidFilterErr     *discuss.InvalidFilterCombinationError
		slugConflictErr      *articles.SlugConflictError
		malformedRequestBody *malformedBodyError
	)

	switch {
	case errors.As(err, &unauthenticatedErr):
		return http.StatusUnauthorized
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden
	case errors.As(err, &postNotFoundErr),
		errors.As(err, &postArticleMissing),
		errors.As(err, &articleNotFoundErr):
		return http.StatusNotFound
	case errors.As(err, &invalidLinkageErr),
		errors.As(err, &emptyContentErr),
		errors.As(err, &invalidFilterErr),
		errors.As(err, &malformedRequestBody):
		return http.StatusBadRequest
	case errors.As(err, &slugConflictErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
