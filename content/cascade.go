package content

import (
	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/status"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// nodeRef is the slim projection the cascade walks: the node id and its
// parent link. The walk never loads full rows.
type nodeRef struct {
	Id       string
	ParentID *string
}

/*
DeletePost soft-deletes a post and its entire reply subtree as one atomic
unit.

Authorization: only the author may delete, and a non-owner (or missing post)
uniformly gets ErrNotFound, so the caller cannot probe post existence through
the ownership check.

The walk is an explicit stack over node ids rather than recursion, so thread
depth never translates into call-stack depth. It visits non-deleted nodes in
post-order: all descendants of a node are marked before the node itself, and
each marked node decrements its parent's replies_count (floored at zero).
Internal decrements land on nodes that this same cascade marks anyway; the
observable effect is that an ancestor outside the subtree sees its
replies_count drop by exactly one, however large the subtree.

The whole cascade runs in one transaction: a failure partway rolls back every
mark and every decrement.
*/
func (g *Graph) DeletePost(requesterID string, postID string) error {
	if requesterID == "" {
		return status.ErrUnauthorized
	}

	err := g.db.Transaction(func(tx *gorm.DB) error {
		var root nodeRef
		err := tx.Model(&model.Post{}).
			Where("id = ? AND author_id = ? AND is_deleted = ?", postID, requesterID, false).
			Select("id", "parent_id").First(&root).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Missing and not-owned are indistinguishable on purpose.
			return errors.Wrap(status.ErrNotFound, "post not found or not authorized")
		}
		if err != nil {
			return err
		}

		order, err := subtreePostOrder(tx, root)
		if err != nil {
			return err
		}

		for _, node := range order {
			if err := tx.Model(&model.Post{}).Where("id = ?", node.Id).
				UpdateColumn("is_deleted", true).Error; err != nil {
				return err
			}
			if node.ParentID == nil {
				continue
			}
			// Floor at zero: the guard keeps the counter from ever going
			// negative even if it was already inconsistent.
			if err := tx.Model(&model.Post{}).
				Where("id = ? AND replies_count > 0", *node.ParentID).
				UpdateColumn("replies_count", gorm.Expr("replies_count - ?", 1)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Descendants are implied by the root id; they are not broadcast
	// individually.
	g.dispatcher.EmitPostDeleted(postID)
	return nil
}

// subtreePostOrder walks the non-deleted subtree under root with an explicit
// stack and returns the nodes in post-order (children before parents).
func subtreePostOrder(tx *gorm.DB, root nodeRef) ([]nodeRef, error) {
	type frame struct {
		node     nodeRef
		expanded bool
	}

	stack := []frame{{node: root}}
	var order []nodeRef

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.expanded {
			order = append(order, top.node)
			continue
		}
		stack = append(stack, frame{node: top.node, expanded: true})

		var children []nodeRef
		if err := tx.Model(&model.Post{}).
			Where("parent_id = ? AND is_deleted = ?", top.node.Id, false).
			Order("created_at asc").
			Select("id", "parent_id").Find(&children).Error; err != nil {
			return nil, err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i]})
		}
	}
	return order, nil
}
