package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/threadline/backend/internal/vector"
)

// Visibility controls who may see a thread.
type Visibility string

const (
	VisibilityPublic        Visibility = "PUBLIC"
	VisibilityPrivate       Visibility = "PRIVATE"
	VisibilityFollowersOnly Visibility = "FOLLOWERS_ONLY"
)

// ReactionKind is a toggleable reaction on a thread.
type ReactionKind string

const (
	ReactionLike   ReactionKind = "LIKE"
	ReactionRepost ReactionKind = "REPOST"
)

// Media is an attachment already uploaded elsewhere.
type Media struct {
	URL       string `json:"url" bson:"url" validate:"required,url"`
	Type      string `json:"type" bson:"type" validate:"required,oneof=image video"`
	Thumbnail string `json:"thumbnail,omitempty" bson:"thumbnail,omitempty" validate:"omitempty,url"`
}

// Thread is a post or, when ParentID is set, a comment (MongoDB).
type Thread struct {
	ID          primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	AuthorID    uint                `json:"author_id" bson:"author_id"`
	ParentID    *primitive.ObjectID `json:"parent_id" bson:"parent_id"`
	Content     string              `json:"content" bson:"content"`
	Visibility  Visibility          `json:"visibility" bson:"visibility"`
	Media       []Media             `json:"media" bson:"media"`
	ReactedBy   []uint              `json:"reacted_by" bson:"reacted_by"`
	ResharedBy  []uint              `json:"reshared_by" bson:"reshared_by"`
	ReactionNum int                 `json:"reaction_num" bson:"reaction_num"`
	SharedNum   int                 `json:"shared_num" bson:"shared_num"`
	Embedding   []float64           `json:"-" bson:"embedding"`
	ReportCount int                 `json:"report_count" bson:"report_count"`
	CreatedAt   time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" bson:"updated_at"`
}

// Topic returns the thread embedding as a vector.
func (t *Thread) Topic() vector.Vector {
	return vector.Vector(t.Embedding)
}

// VisibleTo reports whether viewerID may see the thread. followsAuthor tells
// whether the viewer follows the thread's author.
func (t *Thread) VisibleTo(viewerID uint, followsAuthor bool) bool {
	if t.AuthorID == viewerID {
		return true
	}
	switch t.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityFollowersOnly:
		return followsAuthor
	default:
		return false
	}
}

// HasReactor reports whether userID is in the reactor set for kind.
func (t *Thread) HasReactor(kind ReactionKind, userID uint) bool {
	set := t.ReactedBy
	if kind == ReactionRepost {
		set = t.ResharedBy
	}
	for _, id := range set {
		if id == userID {
			return true
		}
	}
	return false
}

// ThreadSummary is a thread hydrated for a specific viewer.
type ThreadSummary struct {
	ID          string      `json:"id"`
	ParentID    *string     `json:"parent_id"`
	Content     string      `json:"content"`
	Visibility  Visibility  `json:"visibility"`
	Media       []Media     `json:"media"`
	ReactionNum int         `json:"reaction_num"`
	SharedNum   int         `json:"shared_num"`
	CommentNum  int64       `json:"comment_num"`
	IsLiked     bool        `json:"is_liked"`
	IsReshared  bool        `json:"is_reshared"`
	Author      UserCompact `json:"author"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ThreadDetail is a thread with its parent and direct comments.
type ThreadDetail struct {
	Parent   *ThreadSummary  `json:"parent_thread"`
	Main     ThreadSummary   `json:"main_thread"`
	Comments []ThreadSummary `json:"comments"`
}

// UserThreads groups a profile's own threads and the threads it reshared.
type UserThreads struct {
	Threads  []ThreadSummary `json:"threads"`
	Reshared []ThreadSummary `json:"reshared"`
}

// CreateThreadRequest defines the request body for creating a new thread
type CreateThreadRequest struct {
	Content    string     `json:"content" validate:"required,min=1,max=500"`
	Visibility Visibility `json:"visibility" validate:"required,oneof=PUBLIC PRIVATE FOLLOWERS_ONLY"`
	ParentID   string     `json:"parent_id,omitempty" validate:"omitempty,len=24,hexadecimal"`
	Media      []Media    `json:"media,omitempty" validate:"omitempty,max=10,dive"`
}

// UpdateThreadRequest defines the request body for editing a thread
type UpdateThreadRequest struct {
	Content    string     `json:"content" validate:"required,min=1,max=500"`
	Visibility Visibility `json:"visibility" validate:"required,oneof=PUBLIC PRIVATE FOLLOWERS_ONLY"`
	Media      []Media    `json:"media,omitempty" validate:"omitempty,max=10,dive"`
}

// CreateCommentRequest defines the request body for commenting on a thread
type CreateCommentRequest struct {
	Content string  `json:"content" validate:"required,min=1,max=500"`
	Media   []Media `json:"media,omitempty" validate:"omitempty,max=10,dive"`
}

// FeedRequest carries the exclusion cursor of a feed page.
type FeedRequest struct {
	ExcludedIDs []string `json:"excluded_ids" validate:"omitempty,max=1000,dive,len=24,hexadecimal"`
	PageSize    int      `json:"page_size" validate:"omitempty,min=1,max=50"`
}
