// Package notification persists per-user notification rows and hands them to
// the dispatcher for best-effort real-time delivery. Creation happens inside
// the caller's transaction so a failed mutation never leaves a notification
// behind; delivery happens after the caller commits.
package notification

import (
	"time"

	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/realtime"
	"github.com/branchmux/branchmux/status"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RetentionWindow is how long notification rows are kept before the sweep
// purges them.
const RetentionWindow = 10 * 24 * time.Hour

type Engine struct {
	db         *gorm.DB
	dispatcher *realtime.Dispatcher
}

func NewEngine(db *gorm.DB, dispatcher *realtime.Dispatcher) *Engine {
	return &Engine{db: db, dispatcher: dispatcher}
}

// create persists one notification row on tx. Returns nil (and writes
// nothing) when the actor is the recipient: self-actions never notify.
func (e *Engine) create(tx *gorm.DB, recipientID string, actor *model.User, ntype string, message string, relatedPostID *string) (*model.Notification, error) {
	if actor != nil && actor.Id == recipientID {
		return nil, nil
	}
	n := &model.Notification{
		Id:        uuid.New().String(),
		UserID:    recipientID,
		Type:      ntype,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if actor != nil {
		n.RelatedUserID = &actor.Id
	}
	n.RelatedPostID = relatedPostID
	if err := tx.Create(n).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create notification")
	}
	return n, nil
}

// CreateLike notifies the post author that actor liked their post.
func (e *Engine) CreateLike(tx *gorm.DB, post *model.Post, actor *model.User) (*model.Notification, error) {
	return e.create(tx, post.AuthorID, actor, model.NotificationTypeLike,
		actor.Handle+" liked your post", &post.Id)
}

// CreateReply notifies the parent author that actor replied to their post.
func (e *Engine) CreateReply(tx *gorm.DB, parent *model.Post, actor *model.User) (*model.Notification, error) {
	return e.create(tx, parent.AuthorID, actor, model.NotificationTypeReply,
		actor.Handle+" replied to your post", &parent.Id)
}

// CreateShare notifies the post author that actor shared their post.
func (e *Engine) CreateShare(tx *gorm.DB, post *model.Post, actor *model.User) (*model.Notification, error) {
	return e.create(tx, post.AuthorID, actor, model.NotificationTypeShare,
		actor.Handle+" shared your post", &post.Id)
}

// CreateFollow notifies followee that actor started following them.
func (e *Engine) CreateFollow(tx *gorm.DB, followeeID string, actor *model.User) (*model.Notification, error) {
	return e.create(tx, followeeID, actor, model.NotificationTypeFollow,
		actor.Handle+" started following you", nil)
}

// CreateMention notifies a user mentioned in a post's content.
func (e *Engine) CreateMention(tx *gorm.DB, post *model.Post, author *model.User, mentioned *model.User) (*model.Notification, error) {
	if mentioned.Id == post.AuthorID {
		return nil, nil
	}
	return e.create(tx, mentioned.Id, author, model.NotificationTypeMention,
		author.Handle+" mentioned you in a post", &post.Id)
}

// Deliver pushes a committed notification over the real-time channel.
// Best-effort, safe to call with nil (a suppressed notification).
func (e *Engine) Deliver(n *model.Notification) {
	if n == nil {
		return
	}
	e.dispatcher.EmitNewNotification(n)
}

// ListOptions filter List results.
type ListOptions struct {
	Type       string // empty means all types
	UnreadOnly bool
	Offset     int
	Limit      int
}

// List returns the user's notifications, newest first.
func (e *Engine) List(userID string, opts ListOptions) ([]*model.Notification, error) {
	query := e.db.Model(&model.Notification{}).Where("user_id = ?", userID)
	if opts.Type != "" {
		query = query.Where("type = ?", opts.Type)
	}
	if opts.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if opts.Limit > 0 {
		query = query.Offset(opts.Offset).Limit(opts.Limit)
	}
	var notifications []*model.Notification
	if err := query.Order("created_at desc").Find(&notifications).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	return notifications, nil
}

// UnreadCount returns the user's number of unread notifications.
func (e *Engine) UnreadCount(userID string) (int64, error) {
	var count int64
	err := e.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one of the user's notifications as read.
func (e *Engine) MarkRead(userID string, notificationID string) error {
	res := e.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to mark notification read")
	}
	if res.RowsAffected == 0 {
		return status.ErrNotFound
	}
	return nil
}

// MarkAllRead marks all of the user's unread notifications (optionally of a
// single type) as read and returns how many flipped.
func (e *Engine) MarkAllRead(userID string, ntype string) (int64, error) {
	query := e.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if ntype != "" {
		query = query.Where("type = ?", ntype)
	}
	res := query.Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CleanupOld purges notifications older than the retention window and returns
// how many rows went away. Callable on demand; the Sweeper runs it on a
// schedule.
func (e *Engine) CleanupOld(now time.Time) (int64, error) {
	cutoff := now.Add(-RetentionWindow)
	res := e.db.Where("created_at < ?", cutoff).Delete(&model.Notification{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to clean up notifications")
	}
	return res.RowsAffected, nil
}
