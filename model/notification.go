package model

import "time"

// Notification types. The string values are part of the client contract.
const (
	NotificationTypeLike    = "like"
	NotificationTypeReply   = "reply"
	NotificationTypeFollow  = "follow"
	NotificationTypeShare   = "share"
	NotificationTypeMention = "mention"
)

/*

Notification is a durable per-user event row.

Created synchronously, in the same transaction as the action that triggers it,
and suppressed when the actor is the recipient. Real-time delivery through the
dispatcher is a best-effort overlay on top of this row, never the other way
around. Rows older than the retention window are purged by the sweep in the
notification package.
*/

type Notification struct {
	Id            string    `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"index:idx_notification_user;not null" json:"user_id"`
	Type          string    `gorm:"not null" json:"type"`
	Message       string    `gorm:"type:text;not null" json:"message"`
	RelatedUserID *string   `json:"related_user_id"`
	RelatedPostID *string   `json:"related_post_id"`
	IsRead        bool      `gorm:"default:false" json:"is_read"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
