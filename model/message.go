package model

import "time"

/*

Message is a private 1:1 message.

IsSaved: opt-in persistence. Unsaved messages are ephemeral: when a user's
		session ends, the user's own visibility of every unsaved message is
		removed, without touching the other participant's side.
DeletedBySender/DeletedByRecipient: independent per-side visibility flags. A
		message is visible to a user iff that user's own flag is false. The row
		is physically removed only once both flags are true.
*/

type Message struct {
	Id          string    `gorm:"primaryKey" json:"id"`
	SenderID    string    `gorm:"index:idx_msg_sender;not null" json:"sender_id"`
	RecipientID string    `gorm:"index:idx_msg_recipient;not null" json:"recipient_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`

	IsRead  bool `gorm:"default:false" json:"is_read"`
	IsSaved bool `gorm:"default:false" json:"is_saved"`

	DeletedBySender    bool `gorm:"default:false" json:"-"`
	DeletedByRecipient bool `gorm:"default:false" json:"-"`
}

// VisibleTo reports whether the message should appear in userID's view.
func (m *Message) VisibleTo(userID string) bool {
	if userID == m.SenderID && m.DeletedBySender {
		return false
	}
	if userID == m.RecipientID && m.DeletedByRecipient {
		return false
	}
	return true
}

// Conversation tracks metadata for a user pair. User1ID < User2ID always
// holds (canonical ordering), so both directions resolve to the same row.
// Conversations are created lazily on first message and never deleted.
type Conversation struct {
	Id            string    `gorm:"primaryKey" json:"id"`
	User1ID       string    `gorm:"uniqueIndex:ux_conv_pair;not null" json:"user1_id"`
	User2ID       string    `gorm:"uniqueIndex:ux_conv_pair;not null" json:"user2_id"`
	LastMessageID *string   `json:"last_message_id"`
	LastMessage   *Message  `json:"last_message,omitempty"`
	LastActivity  time.Time `gorm:"index" json:"last_activity"`
	CreatedAt     time.Time `json:"created_at"`
}

// OtherUser returns the participant that is not currentUserID.
func (c *Conversation) OtherUser(currentUserID string) string {
	if c.User1ID == currentUserID {
		return c.User2ID
	}
	return c.User1ID
}

// Involves reports whether userID participates in the conversation.
func (c *Conversation) Involves(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}
