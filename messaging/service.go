// Package messaging owns private 1:1 messages, their per-side visibility and
// the lazily created conversation metadata. Messages are ephemeral unless
// explicitly saved: a user's session teardown removes that user's own view of
// every unsaved message.
package messaging

import (
	"strings"
	"time"

	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/realtime"
	"github.com/branchmux/branchmux/status"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Service struct {
	db         *gorm.DB
	dispatcher *realtime.Dispatcher
}

func NewService(db *gorm.DB, dispatcher *realtime.Dispatcher) *Service {
	return &Service{db: db, dispatcher: dispatcher}
}

// canonicalPair orders two user ids so (a,b) and (b,a) address the same
// conversation row.
func canonicalPair(a, b string) (string, string) {
	if a > b {
		a, b = b, a
	}
	return a, b
}

// getOrCreateConversation returns the pair's conversation, creating it lazily
// on first contact. Conversations are never deleted.
func getOrCreateConversation(tx *gorm.DB, a, b string) (*model.Conversation, error) {
	u1, u2 := canonicalPair(a, b)

	var conv model.Conversation
	err := tx.Where("user1_id = ? AND user2_id = ?", u1, u2).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = model.Conversation{
		Id:           uuid.New().String(),
		User1ID:      u1,
		User2ID:      u2,
		LastActivity: time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := tx.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// SendMessage persists a message, updates the conversation pointer and fans
// out: new_message to the pairwise room, plus a transient message_alert to
// the recipient's private room when they are online.
func (s *Service) SendMessage(senderID string, recipientID string, content string) (*model.Message, *model.Conversation, error) {
	if senderID == "" {
		return nil, nil, status.ErrUnauthorized
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, errors.Wrap(status.ErrValidation, "message content is required")
	}
	if recipientID == senderID {
		return nil, nil, errors.Wrap(status.ErrConflict, "cannot send message to yourself")
	}

	var (
		sender model.User
		msg    *model.Message
		conv   *model.Conversation
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND is_active = ?", senderID, true).
			First(&sender).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(status.ErrNotFound, "sender")
			}
			return err
		}
		var recipient model.User
		if err := tx.Where("id = ? AND is_active = ?", recipientID, true).
			First(&recipient).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(status.ErrNotFound, "recipient")
			}
			return err
		}

		msg = &model.Message{
			Id:          uuid.New().String(),
			SenderID:    senderID,
			RecipientID: recipientID,
			Content:     content,
			CreatedAt:   time.Now(),
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		var err error
		conv, err = getOrCreateConversation(tx, senderID, recipientID)
		if err != nil {
			return err
		}
		return tx.Model(conv).Updates(map[string]interface{}{
			"last_message_id": msg.Id,
			"last_activity":   time.Now(),
		}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.dispatcher.EmitNewMessage(msg, conv.Id)
	s.dispatcher.EmitMessageAlert(recipientID, &sender, content, conv.Id)
	return msg, conv, nil
}

// getConversationFor loads a conversation the user participates in; anything
// else is ErrNotFound.
func (s *Service) getConversationFor(userID string, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.Where("id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(status.ErrNotFound, "conversation "+conversationID)
	}
	if err != nil {
		return nil, err
	}
	if !conv.Involves(userID) {
		return nil, errors.Wrap(status.ErrNotFound, "conversation "+conversationID)
	}
	return &conv, nil
}

// MarkConversationRead marks every unread message addressed to userID inside
// the conversation as read, reports how many flipped and confirms over the
// user's private room.
func (s *Service) MarkConversationRead(userID string, conversationID string) (int64, error) {
	if userID == "" {
		return 0, status.ErrUnauthorized
	}
	conv, err := s.getConversationFor(userID, conversationID)
	if err != nil {
		return 0, err
	}

	res := s.db.Model(&model.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?",
			conv.OtherUser(userID), userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}

	s.dispatcher.EmitMessagesRead(userID, conversationID, int(res.RowsAffected))
	return res.RowsAffected, nil
}

// getMessageFor loads a message the user participates in; anything else is
// ErrNotFound.
func (s *Service) getMessageFor(tx *gorm.DB, userID string, messageID string) (*model.Message, error) {
	var msg model.Message
	err := tx.Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(status.ErrNotFound, "message "+messageID)
	}
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		return nil, errors.Wrap(status.ErrNotFound, "message "+messageID)
	}
	return &msg, nil
}

// SaveMessage flips the opt-in persistence flag, excluding the message from
// ephemeral cleanup for both sides.
func (s *Service) SaveMessage(userID string, messageID string) error {
	if userID == "" {
		return status.ErrUnauthorized
	}
	msg, err := s.getMessageFor(s.db, userID, messageID)
	if err != nil {
		return err
	}
	return s.db.Model(msg).Update("is_saved", true).Error
}

// DeleteForUser sets the caller's own deletion flag on the message. Once both
// sides have deleted, the row is physically removed.
func (s *Service) DeleteForUser(userID string, messageID string) error {
	if userID == "" {
		return status.ErrUnauthorized
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		msg, err := s.getMessageFor(tx, userID, messageID)
		if err != nil {
			return err
		}
		return deleteForUser(tx, msg, userID)
	})
}

func deleteForUser(tx *gorm.DB, msg *model.Message, userID string) error {
	if userID == msg.SenderID {
		msg.DeletedBySender = true
		if err := tx.Model(msg).Update("deleted_by_sender", true).Error; err != nil {
			return err
		}
	} else if userID == msg.RecipientID {
		msg.DeletedByRecipient = true
		if err := tx.Model(msg).Update("deleted_by_recipient", true).Error; err != nil {
			return err
		}
	}
	if msg.DeletedBySender && msg.DeletedByRecipient {
		if err := detachLastMessage(tx, msg); err != nil {
			return err
		}
		return tx.Delete(msg).Error
	}
	return nil
}

// detachLastMessage repoints the pair's conversation away from msg before the
// row is physically removed: conversations.last_message_id carries a foreign
// key onto messages, so the reference must move (to the next most recent
// message, or to NULL) in the same transaction as the delete.
func detachLastMessage(tx *gorm.DB, msg *model.Message) error {
	u1, u2 := canonicalPair(msg.SenderID, msg.RecipientID)

	var conv model.Conversation
	err := tx.Where("user1_id = ? AND user2_id = ? AND last_message_id = ?",
		u1, u2, msg.Id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var prev model.Message
	err = tx.Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)) AND id <> ?",
		u1, u2, u2, u1, msg.Id).
		Order("created_at desc").First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Model(&conv).Update("last_message_id", nil).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&conv).Update("last_message_id", prev.Id).Error
}

// CleanupEphemeral removes the user's own visibility of every unsaved message
// touching them. Invoked on logout/disconnect. The other participant's
// visibility and flags are untouched; messages both sides have deleted are
// physically removed.
func (s *Service) CleanupEphemeral(userID string) error {
	if userID == "" {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ephemeral []*model.Message
		err := tx.Where("(sender_id = ? OR recipient_id = ?) AND is_saved = ?",
			userID, userID, false).Find(&ephemeral).Error
		if err != nil {
			return err
		}
		for _, msg := range ephemeral {
			if err := deleteForUser(tx, msg, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversationMessages returns the chronological message history between
// userID and otherUserID, filtered down to what userID may still see.
func (s *Service) GetConversationMessages(userID string, otherUserID string, limit int) ([]*model.Message, error) {
	if userID == "" {
		return nil, status.ErrUnauthorized
	}
	if limit <= 0 {
		limit = 50
	}

	var messages []*model.Message
	err := s.db.
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userID, otherUserID, otherUserID, userID).
		Where("NOT (sender_id = ? AND deleted_by_sender = ?)", userID, true).
		Where("NOT (recipient_id = ? AND deleted_by_recipient = ?)", userID, true).
		Order("created_at desc").Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ConversationSummary is a conversation plus the viewer-dependent unread
// count.
type ConversationSummary struct {
	*model.Conversation
	UnreadCount int64 `json:"unread_count"`
}

// ListConversations returns the user's conversations, most recent activity
// first, with per-conversation unread counts.
func (s *Service) ListConversations(userID string, page int, perPage int) ([]*ConversationSummary, error) {
	if userID == "" {
		return nil, status.ErrUnauthorized
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	var conversations []*model.Conversation
	err := s.db.Preload("LastMessage").
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("last_activity desc").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]*ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		var unread int64
		err := s.db.Model(&model.Message{}).
			Where("sender_id = ? AND recipient_id = ? AND is_read = ?",
				conv.OtherUser(userID), userID, false).
			Count(&unread).Error
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &ConversationSummary{Conversation: conv, UnreadCount: unread})
	}
	return summaries, nil
}
