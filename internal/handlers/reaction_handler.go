package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/models"
)

// ReactionToggler flips likes and reposts
type ReactionToggler interface {
	Toggle(ctx context.Context, actorID uint, threadID string, kind models.ReactionKind) (*models.ThreadSummary, error)
}

// ReactionHandler handles like and repost toggles
type ReactionHandler struct {
	reactions ReactionToggler
}

// NewReactionHandler creates a new ReactionHandler
func NewReactionHandler(reactions ReactionToggler) *ReactionHandler {
	return &ReactionHandler{reactions: reactions}
}

// RegisterReactionRoutes registers reaction routes
func (h *ReactionHandler) RegisterReactionRoutes(g *echo.Group) {
	g.POST("/threads/:id/like", h.toggle(models.ReactionLike))
	g.POST("/threads/:id/repost", h.toggle(models.ReactionRepost))
}

func (h *ReactionHandler) toggle(kind models.ReactionKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := requireUser(c)
		if err != nil {
			return err
		}

		thread, err := h.reactions.Toggle(c.Request().Context(), userID, c.Param("id"), kind)
		if err != nil {
			return httpError(c, err)
		}
		return success(c, http.StatusOK, thread)
	}
}
