package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/middleware"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
)

// AuthHandler provisions local profiles for authenticated identities
type AuthHandler struct {
	userRepository repositories.UserRepository
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(userRepo repositories.UserRepository) *AuthHandler {
	return &AuthHandler{userRepository: userRepo}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/auth/profile", h.Provision)
}

// Provision creates the profile of a Firebase identity seen for the first
// time.
func (h *AuthHandler) Provision(c echo.Context) error {
	if getUserIDFromContext(c) != 0 {
		return echo.NewHTTPError(http.StatusConflict, "Profile already exists")
	}
	firebaseUID, _ := c.Get(middleware.FirebaseUIDKey).(string)
	if firebaseUID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := h.userRepository.GetUserByUsername(ctx, req.Username); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "Username already taken")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return httpError(c, err)
	}

	user := &models.User{
		Username:    req.Username,
		Name:        req.Name,
		Email:       req.Email,
		Avatar:      req.Avatar,
		FirebaseUID: &firebaseUID,
	}
	if err := h.userRepository.CreateUser(ctx, user); err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusCreated, user)
}
