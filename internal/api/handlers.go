package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/scbrf/comments/internal/retry"
	"github.com/scbrf/comments/internal/signature"
	"github.com/scbrf/comments/internal/thread"
)

// errorResponse is the failure envelope: an error class plus a short
// message. Business rejections carry their message verbatim; internal
// faults stay generic so storage details never leak.
type errorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func articleID(c echo.Context) string {
	return c.Param("site") + "/" + c.Param("article")
}

// getArticle serves the read-only query: the current state without touching
// the reader counter. The cache answer may trail the latest mutation; that
// is acceptable for reads and never consulted for writes.
func (s *Server) getArticle(c echo.Context) error {
	id := articleID(c)

	if state := s.cache.Get(id); state != nil {
		return c.JSON(http.StatusOK, state)
	}

	state, err := s.engine.Get(c.Request().Context(), id)
	if err != nil {
		log.Error().Err(err).Str("article_id", id).Msg("failed to read article state")
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Code:  http.StatusInternalServerError,
			Error: "internal error",
		})
	}
	return c.JSON(http.StatusOK, state)
}

// postMutation accepts one mutation: validates its signature, stamps the
// server timestamp, applies it, and returns the full resulting state.
func (s *Server) postMutation(c echo.Context) error {
	id := articleID(c)

	var m thread.Mutation
	if err := c.Bind(&m); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Code:  http.StatusBadRequest,
			Error: "invalid request body",
		})
	}

	if err := signature.Validate(&m); err != nil {
		log.Info().Err(err).Str("article_id", id).Str("from", m.From).Msg("mutation rejected")
		return c.JSON(http.StatusForbidden, errorResponse{
			Code:  http.StatusForbidden,
			Error: err.Error(),
		})
	}

	// Creation time is server-observed; clients never supply it.
	m.Timestamp = time.Now().UnixMilli()

	var state *thread.ArticleState
	result := retry.WithBackoff(c.Request().Context(), retry.StorageConfig(), func() error {
		var err error
		state, err = s.engine.Apply(c.Request().Context(), id, &m)
		return err
	})
	if !result.Success {
		return s.mutationError(c, id, result.LastError)
	}

	s.cache.Put(id, state)
	return c.JSON(http.StatusOK, state)
}

func (s *Server) mutationError(c echo.Context, id string, err error) error {
	if thread.IsRejection(err) {
		log.Info().Err(err).Str("article_id", id).Msg("mutation rejected")
		return c.JSON(http.StatusForbidden, errorResponse{
			Code:  http.StatusForbidden,
			Error: err.Error(),
		})
	}

	var se *thread.StorageError
	if errors.As(err, &se) {
		log.Error().Err(err).Str("article_id", id).Msg("storage fault applying mutation")
	} else {
		log.Error().Err(err).Str("article_id", id).Msg("unexpected error applying mutation")
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Code:  http.StatusInternalServerError,
		Error: "internal error",
	})
}
