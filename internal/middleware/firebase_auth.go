package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/pkg/firebase"
)

// UserLookup resolves a Firebase identity to a local profile
type UserLookup interface {
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
}

// FirebaseAuthMiddleware verifies Firebase ID tokens. The Firebase UID is
// always stored; the local user id only once a profile exists, so that a
// new identity can still reach profile provisioning.
func FirebaseAuthMiddleware(verifier firebase.TokenVerifier, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			token, err := verifier.VerifyIDToken(ctx, idToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}
			c.Set(FirebaseUIDKey, token.UID)
			c.Set("firebaseToken", token)

			user, err := users.GetUserByFirebaseUID(ctx, token.UID)
			switch {
			case err == nil:
				c.Set(UserIDKey, user.ID)
			case errors.Is(err, apperrors.ErrNotFound):
				// no profile yet
			default:
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return next(c)
		}
	}
}
