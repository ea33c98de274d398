package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/searchrag/internal/pipeline"
)

type QueryRequest struct {
	Query     string `json:"query" validate:"required,max=4000"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type ClearRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
}

// QueryHandler exposes the pipeline over HTTP.
type QueryHandler struct {
	Pipeline *pipeline.Pipeline
	// Timeout bounds one pipeline run; zero leaves the request context alone.
	Timeout time.Duration
	// NewSessionID mints ids for requests without one. Defaults to uuid.NewString.
	NewSessionID func() string
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("/query", h.query)
	g.POST("/clear", h.clear)
	g.GET("/conversation/:session_id", h.conversation)
}

func (h *QueryHandler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Query = strings.TrimSpace(req.Query)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.SessionID == "" {
		req.SessionID = h.newSessionID()
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	resp, err := h.Pipeline.Run(ctx, req.SessionID, req.Query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) clear(c echo.Context) error {
	var req ClearRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := c.Validate(&req); err != nil {
		return err
	}
	resp, err := h.Pipeline.Clear(c.Request().Context(), req.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) conversation(c echo.Context) error {
	resp, err := h.Pipeline.Conversation(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

func (h *QueryHandler) newSessionID() string {
	if h.NewSessionID != nil {
		return h.NewSessionID()
	}
	return uuid.NewString()
}
