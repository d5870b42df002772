package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/models"
)

// Inbox is the receiver side of notifications
type Inbox interface {
	List(ctx context.Context, receiverID uint, page, limit int) ([]models.NotificationSummary, int64, error)
	Grouped(ctx context.Context, receiverID uint) (*models.GroupedNotifications, error)
	MarkRead(ctx context.Context, receiverID, id uint) error
	MarkManyRead(ctx context.Context, receiverID uint, ids []uint) (int64, error)
	MarkAllRead(ctx context.Context, receiverID uint) (int64, error)
	UnreadCount(ctx context.Context, receiverID uint) (int64, error)
}

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	inbox Inbox
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(inbox Inbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.POST("/notifications/read", h.MarkManyAsRead)
	g.POST("/notifications/read-all", h.MarkAllAsRead)
	g.POST("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns paginated notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	notifications, total, err := h.inbox.List(c.Request().Context(), currentUserID, page, limit)
	if err != nil {
		return httpError(c, err)
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": notifications,
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	grouped, err := h.inbox.Grouped(ctx, currentUserID)
	if err != nil {
		return httpError(c, err)
	}
	unreadCount, err := h.inbox.UnreadCount(ctx, currentUserID)
	if err != nil {
		return httpError(c, err)
	}

	return success(c, http.StatusOK, echo.Map{
		"notifications": grouped,
		"unreadCount":   unreadCount,
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	count, err := h.inbox.UnreadCount(c.Request().Context(), currentUserID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"count": count})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	if err := h.inbox.MarkRead(c.Request().Context(), currentUserID, uint(notifID)); err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"success": true})
}

// MarkManyAsRead marks a batch of the caller's notifications as read
func (h *NotificationHandler) MarkManyAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.MarkReadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.inbox.MarkManyRead(c.Request().Context(), currentUserID, req.IDs)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"updated": updated})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	updated, err := h.inbox.MarkAllRead(c.Request().Context(), currentUserID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"updated": updated})
}
