package models

import "time"

// Follow is one directed edge of the social graph: FollowerID follows
// FollowingID. The same row is the follower's "following" entry and the
// target's "followers" entry.
type Follow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	FollowerID  uint      `json:"follower_id" gorm:"index;uniqueIndex:idx_follower_following"`
	FollowingID uint      `json:"following_id" gorm:"index;uniqueIndex:idx_follower_following"`
	CreatedAt   time.Time `json:"created_at"`
}

// GraphSummary is returned by follow toggles.
type GraphSummary struct {
	Following      bool          `json:"following"`
	FollowersCount int           `json:"followers_count"`
	FollowingCount int           `json:"following_count"`
	FollowingList  []UserCompact `json:"following_list"`
}
