package content

import (
	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DefaultTreeDepth bounds conversation trees when the caller does not ask for
// a specific depth.
const DefaultTreeDepth = 5

// TreeNode is a post with its nested, non-deleted replies.
type TreeNode struct {
	*model.Post
	Replies []*TreeNode `json:"replies"`
}

// GetConversationTree returns the non-deleted descendants of a post, nested
// and ordered by creation time ascending within each level, cut off once
// branch level reaches maxDepth. Read-only and restartable: it performs no
// writes and one query per level.
func (g *Graph) GetConversationTree(postID string, maxDepth int) ([]*TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}

	var root model.Post
	err := g.db.Where("id = ? AND is_deleted = ?", postID, false).First(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(status.ErrNotFound, "post "+postID)
	}
	if err != nil {
		return nil, err
	}

	nodes := map[string]*TreeNode{}
	var topLevel []*TreeNode

	frontier := []string{root.Id}
	for level := root.BranchLevel; len(frontier) > 0 && level < maxDepth; level++ {
		var children []*model.Post
		if err := g.db.Preload("Author").
			Where("parent_id IN ? AND is_deleted = ?", frontier, false).
			Order("created_at asc").
			Find(&children).Error; err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, child := range children {
			node := &TreeNode{Post: child}
			nodes[child.Id] = node
			if parent, ok := nodes[*child.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
			} else {
				topLevel = append(topLevel, node)
			}
			frontier = append(frontier, child.Id)
		}
	}

	return topLevel, nil
}
