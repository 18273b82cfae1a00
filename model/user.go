package model

import "time"

/*

User is an account in the social graph.

Id: primary key (uuid)
Handle: unique public name, used in notification texts and presence payloads
IsActive: deactivated users are invisible to messaging and mentions
LastSeen: updated by the realtime gateway on connect/disconnect

Identity and session issuance live outside this service. The users table is
only the directory the core consumes: "user exists and is active" lookups.
*/

type User struct {
	Id        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Handle    string    `gorm:"uniqueIndex;not null" json:"handle"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	LastSeen  time.Time `json:"last_seen"`
}

// UserFollow is the follower edge (follower follows followee). The composite
// unique index prevents duplicated follows.
type UserFollow struct {
	Id         string    `gorm:"primaryKey" json:"id"`
	FollowerID string    `gorm:"uniqueIndex:ux_follow_pair;index;not null" json:"follower_id"`
	FolloweeID string    `gorm:"uniqueIndex:ux_follow_pair;not null" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}
