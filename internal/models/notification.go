package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
)

// NotificationKind is the social event a notification reports.
type NotificationKind string

const (
	NotificationLike    NotificationKind = "LIKE"
	NotificationRepost  NotificationKind = "REPOST"
	NotificationComment NotificationKind = "COMMENT"
	NotificationFollow  NotificationKind = "FOLLOW"
)

// NotificationKindFor maps a reaction to the notification it raises.
func NotificationKindFor(kind ReactionKind) NotificationKind {
	if kind == ReactionRepost {
		return NotificationRepost
	}
	return NotificationLike
}

// Notification is one row of the aggregated inbox (PostgreSQL). A row can
// stand for many events: merges rewrite ActorID, ActorIDs, IsRead, Content
// and UpdatedAt in place.
type Notification struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	ReceiverID uint             `json:"receiver_id" gorm:"index:idx_notification_subject,priority:1;not null"`
	ActorID    uint             `json:"actor_id" gorm:"index;not null"`
	ActorIDs   datatypes.JSON   `json:"-"`
	SubjectID  *string          `json:"subject_id" gorm:"size:24;index:idx_notification_subject,priority:2"`
	Kind       NotificationKind `json:"kind" gorm:"size:20;index:idx_notification_subject,priority:3;not null"`
	Content    string           `json:"content" gorm:"size:40"`
	IsRead     bool             `json:"is_read" gorm:"not null;index"`
	CreatedAt  time.Time        `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time        `json:"updated_at" gorm:"index"`
}

// Actors decodes the distinct contributing actors, oldest first.
func (n *Notification) Actors() ([]uint, error) {
	if len(n.ActorIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(n.ActorIDs, &ids); err != nil {
		return nil, fmt.Errorf("notification %d actor set: %w", n.ID, err)
	}
	return ids, nil
}

// AddActor records actorID as the latest actor. The actor set keeps each id
// once; the return value reports whether the set grew.
func (n *Notification) AddActor(actorID uint) (bool, error) {
	ids, err := n.Actors()
	if err != nil {
		return false, err
	}
	n.ActorID = actorID
	for _, id := range ids {
		if id == actorID {
			return false, nil
		}
	}
	ids = append(ids, actorID)
	raw, err := json.Marshal(ids)
	if err != nil {
		return false, err
	}
	n.ActorIDs = datatypes.JSON(raw)
	return true, nil
}

// ThreadSnippet is the subject summary carried by a notification payload.
type ThreadSnippet struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// NotificationSummary is the hydrated form pushed live and returned by the
// inbox listing.
type NotificationSummary struct {
	ID         uint             `json:"id"`
	Kind       NotificationKind `json:"kind"`
	Content    string           `json:"content"`
	IsRead     bool             `json:"is_read"`
	Actor      UserCompact      `json:"actor"`
	Actors     []UserCompact    `json:"actors"`
	ActorCount int              `json:"actor_count"`
	Subject    *ThreadSnippet   `json:"subject"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// GroupedNotifications buckets an inbox by recency.
type GroupedNotifications struct {
	Today     []NotificationSummary `json:"today"`
	Yesterday []NotificationSummary `json:"yesterday"`
	ThisWeek  []NotificationSummary `json:"thisWeek"`
	Older     []NotificationSummary `json:"older"`
}

// LiveEvent is the envelope written to live sessions.
type LiveEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// LiveEventNotification is the LiveEvent type for notification pushes.
const LiveEventNotification = "new_notification"

// MarkReadRequest defines the request body for marking a batch as read
type MarkReadRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,max=200"`
}
