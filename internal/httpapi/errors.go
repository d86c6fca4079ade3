package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/graph"
	"github.com/goliatone/go-graph-cache/pkg/logger"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errBadID           = errors.New("id must be a positive integer")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrInvalidInput),
		errors.Is(err, feed.ErrInvalidActivity),
		errors.Is(err, errBadID):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			logger.String("method", c.Request.Method),
			logger.String("route", c.FullPath()),
			logger.Error(err))
		c.AbortWithStatusJSON(status, ErrorResponse{Error: http.StatusText(status)})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}
