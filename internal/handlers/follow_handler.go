package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/models"
)

// GraphOperations manages follow edges
type GraphOperations interface {
	ToggleFollow(ctx context.Context, actorID, targetID uint) (*models.GraphSummary, error)
	RemoveFollower(ctx context.Context, userID, followerID uint) error
	Followers(ctx context.Context, userID uint) ([]models.UserCompact, error)
	Following(ctx context.Context, userID uint) ([]models.UserCompact, error)
}

// UserFinder resolves handles to users
type UserFinder interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// FollowHandler handles follow/unfollow HTTP requests
type FollowHandler struct {
	graph GraphOperations
	users UserFinder
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(graph GraphOperations, users UserFinder) *FollowHandler {
	return &FollowHandler{graph: graph, users: users}
}

// RegisterFollowRoutes registers follow-related routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.POST("/users/:username/follow", h.ToggleFollow)
	g.GET("/users/:username/followers", h.GetFollowers)
	g.GET("/users/:username/following", h.GetFollowing)
	g.DELETE("/followers/:username", h.RemoveFollower)
}

func (h *FollowHandler) target(c echo.Context) (*models.User, error) {
	user, err := h.users.GetUserByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return nil, httpError(c, err)
	}
	return user, nil
}

// ToggleFollow follows the user, or unfollows when already following
func (h *FollowHandler) ToggleFollow(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	target, err := h.target(c)
	if err != nil {
		return err
	}

	summary, err := h.graph.ToggleFollow(c.Request().Context(), userID, target.ID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, summary)
}

// RemoveFollower drops a follower of the caller
func (h *FollowHandler) RemoveFollower(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	follower, err := h.target(c)
	if err != nil {
		return err
	}

	if err := h.graph.RemoveFollower(c.Request().Context(), userID, follower.ID); err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"removed": true})
}

// GetFollowers lists who follows the user
func (h *FollowHandler) GetFollowers(c echo.Context) error {
	target, err := h.target(c)
	if err != nil {
		return err
	}
	users, err := h.graph.Followers(c.Request().Context(), target.ID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"users": users, "count": len(users)})
}

// GetFollowing lists whom the user follows
func (h *FollowHandler) GetFollowing(c echo.Context) error {
	target, err := h.target(c)
	if err != nil {
		return err
	}
	users, err := h.graph.Following(c.Request().Context(), target.ID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"users": users, "count": len(users)})
}
