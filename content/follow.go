package content

import (
	"time"

	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/status"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// FollowUser adds a follower edge and notifies the followee. Duplicated
// follows and self-follows are conflicts.
func (g *Graph) FollowUser(followerID string, followeeID string) error {
	if followerID == "" {
		return status.ErrUnauthorized
	}
	if followerID == followeeID {
		return errors.Wrap(status.ErrConflict, "cannot follow yourself")
	}

	var pending *model.Notification
	err := g.db.Transaction(func(tx *gorm.DB) error {
		follower, err := getActiveUser(tx, followerID)
		if err != nil {
			return err
		}
		if _, err := getActiveUser(tx, followeeID); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.UserFollow{}).
			Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Wrap(status.ErrConflict, "already following")
		}

		edge := &model.UserFollow{
			Id:         uuid.New().String(),
			FollowerID: followerID,
			FolloweeID: followeeID,
			CreatedAt:  time.Now(),
		}
		if err := tx.Create(edge).Error; err != nil {
			return err
		}

		pending, err = g.notifier.CreateFollow(tx, followeeID, follower)
		return err
	})
	if err != nil {
		return err
	}

	g.notifier.Deliver(pending)
	return nil
}

// UnfollowUser removes the follower edge.
func (g *Graph) UnfollowUser(followerID string, followeeID string) error {
	if followerID == "" {
		return status.ErrUnauthorized
	}
	res := g.db.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&model.UserFollow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(status.ErrNotFound, "not following")
	}
	return nil
}

// IsFollowing reports whether follower follows followee.
func (g *Graph) IsFollowing(followerID string, followeeID string) (bool, error) {
	var count int64
	err := g.db.Model(&model.UserFollow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error
	return count > 0, err
}

// GetTimeline returns posts for a user's home timeline: their own posts plus
// posts from users they follow, newest first. Anonymous callers get the
// public timeline of root posts instead.
func (g *Graph) GetTimeline(userID string, page int, perPage int) ([]*model.Post, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	var posts []*model.Post
	query := g.db.Preload("Author").Where("is_deleted = ?", false)
	if userID == "" {
		query = query.Where("parent_id IS NULL")
	} else {
		followees := g.db.Model(&model.UserFollow{}).
			Select("followee_id").Where("follower_id = ?", userID)
		query = query.Where("author_id = ? OR author_id IN (?)", userID, followees)
	}
	if err := query.Order("created_at desc").Offset(offset).Limit(perPage).Find(&posts).Error; err != nil {
		return nil, err
	}
	g.decorateViewStatus(userID, posts)
	return posts, nil
}

// decorateViewStatus fills IsViewed on each post from the view store. An
// overlay like the view counting itself: store errors leave the flags false.
func (g *Graph) decorateViewStatus(viewerID string, posts []*model.Post) {
	if g.views == nil || viewerID == "" || len(posts) == 0 {
		return
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.Id
	}
	viewed, err := g.views.GetPostsViewStatus(ids, viewerID)
	if err != nil || len(viewed) != len(posts) {
		return
	}
	for i, p := range posts {
		p.IsViewed = viewed[i]
	}
}
