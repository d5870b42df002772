package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/models"
)

// FeedReader pages through a viewer's feed
type FeedReader interface {
	GetFeed(ctx context.Context, viewerID uint, excludedIDs []string, pageSize int) ([]models.ThreadSummary, error)
}

// FeedHandler handles feed-related HTTP requests
type FeedHandler struct {
	feed FeedReader
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(feed FeedReader) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.POST("/feed", h.GetFeed)
}

// GetFeed returns the next feed page. The client sends back every thread id
// it has already received; an empty page means the feed is exhausted.
func (h *FeedHandler) GetFeed(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.FeedRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	threads, err := h.feed.GetFeed(c.Request().Context(), userID, req.ExcludedIDs, req.PageSize)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{
		"threads":  threads,
		"has_more": len(threads) > 0,
	})
}
