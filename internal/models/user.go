package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/datatypes"

	"github.com/anonto42/threadline/backend/internal/vector"
)

// User is an account together with its interest profile and denormalized
// follow counters (PostgreSQL).
type User struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Username       string         `json:"username" gorm:"size:50;uniqueIndex"`
	Name           string         `json:"name"`
	Email          string         `json:"email" gorm:"uniqueIndex"`
	Avatar         string         `json:"avatar"`
	FirebaseUID    *string        `json:"firebase_uid,omitempty" gorm:"uniqueIndex"`
	InterestVector datatypes.JSON `json:"-"`
	InterestDim    int            `json:"-" gorm:"not null;default:0"`
	FollowersCount int            `json:"followers_count" gorm:"not null;default:0"`
	FollowingCount int            `json:"following_count" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Interest decodes the stored interest profile. A user that never reacted to
// embedded content has an empty profile.
func (u *User) Interest() vector.Vector {
	if len(u.InterestVector) == 0 || u.InterestDim == 0 {
		return nil
	}
	var v vector.Vector
	if err := json.Unmarshal(u.InterestVector, &v); err != nil {
		return nil
	}
	return v
}

// SetInterest encodes v into the row and keeps InterestDim in step with it.
func (u *User) SetInterest(v vector.Vector) error {
	if v == nil {
		v = vector.Vector{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	u.InterestVector = datatypes.JSON(raw)
	u.InterestDim = v.Dim()
	return nil
}

// UserCompact is the display subset of a user embedded in other payloads.
type UserCompact struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// ToCompact returns the display subset of u.
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Avatar:   u.Avatar,
	}
}

// CreateUserRequest defines the request body for provisioning a profile
// for an already authenticated identity.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=50"`
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// UpdateUserRequest defines the request body for profile edits
type UpdateUserRequest struct {
	Name   string `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Avatar string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
