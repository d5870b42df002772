package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/models"
)

// ThreadOperations is the thread lifecycle used by ThreadHandler
type ThreadOperations interface {
	Create(ctx context.Context, authorID uint, req models.CreateThreadRequest) (*models.ThreadSummary, error)
	Comment(ctx context.Context, authorID uint, parentID string, req models.CreateCommentRequest) (*models.ThreadSummary, error)
	Edit(ctx context.Context, actorID uint, id string, req models.UpdateThreadRequest) (*models.ThreadSummary, error)
	Delete(ctx context.Context, actorID uint, id string) error
	Detail(ctx context.Context, viewerID uint, id string) (*models.ThreadDetail, error)
	ListUserThreads(ctx context.Context, viewerID uint, username string) (*models.UserThreads, error)
	Search(ctx context.Context, viewerID uint, query string) ([]models.ThreadSummary, error)
}

// ThreadHandler handles HTTP requests related to threads and comments
type ThreadHandler struct {
	threads ThreadOperations
}

// NewThreadHandler creates a new ThreadHandler
func NewThreadHandler(threads ThreadOperations) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

// RegisterThreadRoutes registers thread-related routes
func (h *ThreadHandler) RegisterThreadRoutes(g *echo.Group) {
	g.POST("/threads", h.CreateThread)
	g.GET("/threads/search", h.SearchThreads)
	g.GET("/threads/:id", h.GetThread)
	g.PUT("/threads/:id", h.UpdateThread)
	g.DELETE("/threads/:id", h.DeleteThread)
	g.POST("/threads/:id/comments", h.CreateComment)
	g.GET("/users/:username/threads", h.GetUserThreads)
}

// CreateThread posts a thread, or a comment when parent_id is set
func (h *ThreadHandler) CreateThread(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.CreateThreadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	thread, err := h.threads.Create(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusCreated, thread)
}

// SearchThreads finds visible threads whose content contains q
func (h *ThreadHandler) SearchThreads(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Search query 'q' is required")
	}

	threads, err := h.threads.Search(c.Request().Context(), userID, query)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, threads)
}

// GetThread returns a thread with its parent and comments
func (h *ThreadHandler) GetThread(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	detail, err := h.threads.Detail(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, detail)
}

// UpdateThread edits a thread owned by the caller
func (h *ThreadHandler) UpdateThread(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.UpdateThreadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	thread, err := h.threads.Edit(c.Request().Context(), userID, c.Param("id"), req)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, thread)
}

// DeleteThread removes a thread owned by the caller
func (h *ThreadHandler) DeleteThread(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	if err := h.threads.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateComment comments on a thread
func (h *ThreadHandler) CreateComment(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.CreateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	comment, err := h.threads.Comment(c.Request().Context(), userID, c.Param("id"), req)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusCreated, comment)
}

// GetUserThreads lists a profile's threads and reshares visible to the caller
func (h *ThreadHandler) GetUserThreads(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	threads, err := h.threads.ListUserThreads(c.Request().Context(), userID, c.Param("username"))
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, threads)
}
