// Package content owns the post tree: creation, engagement, cascade
// deletion, conversation trees and trending. Every mutation commits as a
// single gorm transaction; fan-out and notification delivery happen strictly
// after commit, as a best-effort overlay.
package content

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/notification"
	"github.com/branchmux/branchmux/realtime"
	"github.com/branchmux/branchmux/status"
	"github.com/branchmux/branchmux/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// MaxContentLength is the post content limit, counted in code points.
const MaxContentLength = 250

var mentionPattern = regexp.MustCompile(`@(\w+)`)

type Graph struct {
	db         *gorm.DB
	notifier   *notification.Engine
	dispatcher *realtime.Dispatcher

	// views dedups views_count increments per (user, post). Optional: when
	// nil every read bumps the counter, matching the pre-redis behavior.
	views *utils.ViewStatusStore
}

func NewGraph(db *gorm.DB, notifier *notification.Engine, dispatcher *realtime.Dispatcher) *Graph {
	return &Graph{db: db, notifier: notifier, dispatcher: dispatcher}
}

// WithViewStore attaches the redis-backed view-status store.
func (g *Graph) WithViewStore(store *utils.ViewStatusStore) *Graph {
	g.views = store
	return g
}

// getActiveUser loads an active user or reports ErrNotFound.
func getActiveUser(tx *gorm.DB, userID string) (*model.User, error) {
	var user model.User
	err := tx.Where("id = ? AND is_active = ?", userID, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(status.ErrNotFound, "user "+userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// getLivePost loads a non-deleted post or reports ErrNotFound.
func getLivePost(tx *gorm.DB, postID string) (*model.Post, error) {
	var post model.Post
	err := tx.Where("id = ? AND is_deleted = ?", postID, false).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(status.ErrNotFound, "post "+postID)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost validates and persists a post. When parentID is set the post
// becomes a reply (or, with asBranch, a branch root) under that parent:
// branch level, conversation root and the parent's replies_count are derived
// inside the same transaction, and a reply notification is queued for the
// parent author. On commit the post is fanned out to the timeline.
func (g *Graph) CreatePost(authorID string, content string, parentID *string, asBranch bool) (*model.Post, error) {
	if authorID == "" {
		return nil, status.ErrUnauthorized
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.Wrap(status.ErrValidation, "content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, errors.Wrap(status.ErrValidation, "content must be 250 characters or less")
	}

	now := time.Now()
	post := &model.Post{
		Id:        uuid.New().String(),
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var pending []*model.Notification

	err := g.db.Transaction(func(tx *gorm.DB) error {
		author, err := getActiveUser(tx, authorID)
		if err != nil {
			return err
		}

		if parentID != nil {
			parent, err := getLivePost(tx, *parentID)
			if err != nil {
				return errors.Wrap(err, "parent post")
			}

			rootID := parent.Id
			if parent.ConversationRootID != nil {
				rootID = *parent.ConversationRootID
			}
			post.ParentID = &parent.Id
			post.ConversationRootID = &rootID
			post.BranchLevel = parent.BranchLevel + 1
			post.IsBranchRoot = asBranch

			// Direct, non-deleted children only: exactly one increment per
			// reply, never subtree size.
			if err := tx.Model(&model.Post{}).Where("id = ?", parent.Id).
				UpdateColumn("replies_count", gorm.Expr("replies_count + ?", 1)).Error; err != nil {
				return err
			}

			n, err := g.notifier.CreateReply(tx, parent, author)
			if err != nil {
				return err
			}
			if n != nil {
				pending = append(pending, n)
			}
		} else {
			// A root post is its own conversation root.
			rootID := post.Id
			post.ConversationRootID = &rootID
		}

		if err := tx.Create(post).Error; err != nil {
			return err
		}

		mentionNotifications, err := g.notifyMentions(tx, post, author)
		if err != nil {
			return err
		}
		pending = append(pending, mentionNotifications...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.dispatcher.EmitNewPost(post)
	for _, n := range pending {
		g.notifier.Deliver(n)
	}
	return post, nil
}

// notifyMentions creates a mention notification for every existing active
// user whose handle appears as @handle in the content.
func (g *Graph) notifyMentions(tx *gorm.DB, post *model.Post, author *model.User) ([]*model.Notification, error) {
	var created []*model.Notification
	seen := []string{}
	for _, match := range mentionPattern.FindAllStringSubmatch(post.Content, -1) {
		handle := strings.ToLower(match[1])
		if utils.ContainsString(seen, handle) {
			continue
		}
		seen = append(seen, handle)

		var mentioned model.User
		err := tx.Where("handle = ? AND is_active = ?", handle, true).First(&mentioned).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		n, err := g.notifier.CreateMention(tx, post, author, &mentioned)
		if err != nil {
			return nil, err
		}
		if n != nil {
			created = append(created, n)
		}
	}
	return created, nil
}

// LikePost toggles userID's membership in the post's liked-by set, adjusting
// likes_count in the same transaction. A like transition queues a "like"
// notification; an unlike never does. Returns the updated post and whether
// the post ended up liked.
func (g *Graph) LikePost(userID string, postID string) (*model.Post, bool, error) {
	if userID == "" {
		return nil, false, status.ErrUnauthorized
	}

	var (
		post    *model.Post
		liked   bool
		pending *model.Notification
	)
	err := g.db.Transaction(func(tx *gorm.DB) error {
		user, err := getActiveUser(tx, userID)
		if err != nil {
			return err
		}
		post, err = getLivePost(tx, postID)
		if err != nil {
			return err
		}

		var existing model.PostLike
		err = tx.Where("user_id = ? AND post_id = ?", userID, postID).First(&existing).Error
		switch {
		case err == nil:
			// Toggle off.
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			if err := tx.Model(&model.Post{}).Where("id = ?", post.Id).
				UpdateColumn("likes_count", gorm.Expr("likes_count - ?", 1)).Error; err != nil {
				return err
			}
			post.LikesCount--
			liked = false
		case errors.Is(err, gorm.ErrRecordNotFound):
			like := &model.PostLike{
				Id:        uuid.New().String(),
				UserID:    userID,
				PostID:    postID,
				CreatedAt: time.Now(),
			}
			if err := tx.Create(like).Error; err != nil {
				return err
			}
			if err := tx.Model(&model.Post{}).Where("id = ?", post.Id).
				UpdateColumn("likes_count", gorm.Expr("likes_count + ?", 1)).Error; err != nil {
				return err
			}
			post.LikesCount++
			liked = true
			pending, err = g.notifier.CreateLike(tx, post, user)
			if err != nil {
				return err
			}
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	g.dispatcher.EmitPostUpdated(post)
	g.notifier.Deliver(pending)
	return post, liked, nil
}

// SharePost appends userID to the post's shared-by set. Shares are
// append-only: sharing an already-shared post fails with ErrConflict and
// leaves shares_count untouched.
func (g *Graph) SharePost(userID string, postID string) (*model.Post, error) {
	if userID == "" {
		return nil, status.ErrUnauthorized
	}

	var (
		post    *model.Post
		pending *model.Notification
	)
	err := g.db.Transaction(func(tx *gorm.DB) error {
		user, err := getActiveUser(tx, userID)
		if err != nil {
			return err
		}
		post, err = getLivePost(tx, postID)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.PostShare{}).
			Where("user_id = ? AND post_id = ?", userID, postID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Wrap(status.ErrConflict, "post already shared")
		}

		share := &model.PostShare{
			Id:       uuid.New().String(),
			UserID:   userID,
			PostID:   postID,
			SharedAt: time.Now(),
		}
		if err := tx.Create(share).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Post{}).Where("id = ?", post.Id).
			UpdateColumn("shares_count", gorm.Expr("shares_count + ?", 1)).Error; err != nil {
			return err
		}
		post.SharesCount++

		pending, err = g.notifier.CreateShare(tx, post, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.notifier.Deliver(pending)
	return post, nil
}

// IsLikedBy reports whether the user currently likes the post.
func (g *Graph) IsLikedBy(userID string, postID string) (bool, error) {
	var count int64
	err := g.db.Model(&model.PostLike{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	return count > 0, err
}

// GetPost returns a non-deleted post together with its conversation tree and
// registers a view. With a view store attached, an authenticated viewer bumps
// views_count at most once per post.
func (g *Graph) GetPost(viewerID string, postID string, maxDepth int) (*model.Post, []*TreeNode, error) {
	var post model.Post
	err := g.db.Preload("Author").
		Where("id = ? AND is_deleted = ?", postID, false).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errors.Wrap(status.ErrNotFound, "post "+postID)
	}
	if err != nil {
		return nil, nil, err
	}

	countView := true
	if g.views != nil && viewerID != "" {
		first, err := g.views.MarkPostViewed(viewerID, postID)
		// The view store is an overlay: on error fall back to counting.
		if err == nil {
			countView = first
		}
	}
	if countView {
		if err := g.db.Model(&model.Post{}).Where("id = ?", post.Id).
			UpdateColumn("views_count", gorm.Expr("views_count + ?", 1)).Error; err != nil {
			return nil, nil, err
		}
		post.ViewsCount++
	}

	tree, err := g.GetConversationTree(postID, maxDepth)
	if err != nil {
		return nil, nil, err
	}
	return &post, tree, nil
}
