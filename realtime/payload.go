package realtime

import (
	"github.com/branchmux/branchmux/model"
	"github.com/jinzhu/copier"
)

// Payload shapes pushed to clients. Field names are part of the client
// contract, mirror the REST JSON shapes.

type PostPayload struct {
	Post *model.Post `json:"post"`
}

type PostDeletedPayload struct {
	PostID string `json:"post_id"`
}

type NotificationPayload struct {
	Notification *model.Notification `json:"notification"`
}

type MessagePayload struct {
	Message        *model.Message `json:"message"`
	ConversationID string         `json:"conversation_id"`
}

// UserSummary is the slim user shape embedded in alerts and presence events.
type UserSummary struct {
	Id     string `json:"id"`
	Handle string `json:"handle"`
}

// SummarizeUser projects a full user row onto the wire shape.
func SummarizeUser(u *model.User) *UserSummary {
	summary := &UserSummary{}
	copier.Copy(summary, u)
	return summary
}

type MessageAlertPayload struct {
	Sender         *UserSummary `json:"sender"`
	Preview        string       `json:"preview"`
	ConversationID string       `json:"conversation_id"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
}

type TypingPayload struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	Typing bool   `json:"typing"`
}

type MessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
	Count          int    `json:"count"`
}
