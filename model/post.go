package model

import "time"

/*

Post is a node in the content graph.

Id: primary key (uuid)
AuthorID: the posting user, "belongs-to" relation
Content: plain text, at most 250 code points

ParentID:
ConversationRootID:
		self references forming the reply tree. ConversationRootID is set once
		at creation, inherited from the parent (or the parent itself when the
		parent is a root) and never changes afterwards. Every descendant points
		at the root directly, regardless of depth.
BranchLevel: 0 for root posts, parent's level + 1 otherwise
IsBranchRoot: true when the reply was explicitly flagged as starting a new
		branch under the shared conversation root

LikesCount/RepliesCount/SharesCount/ViewsCount: engagement counters.
		RepliesCount counts direct, non-deleted children only, never the whole
		subtree. LikesCount and SharesCount mirror the like/share join tables
		and are adjusted in the same transaction as the membership change.

IsDeleted: soft-delete flag. Posts are never hard-deleted so that descendant
		links and notifications stay resolvable. Cascade deletion walks the
		subtree and flips this flag on every node.
IsReported: set by the (external) moderation flow.
*/

type Post struct {
	Id        string    `gorm:"primaryKey" json:"id"`
	AuthorID  string    `gorm:"index:idx_post_author;not null" json:"author_id"`
	Author    *User     `json:"author,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ParentID           *string `gorm:"index:idx_post_parent" json:"parent_id"`
	ConversationRootID *string `gorm:"index:idx_post_root" json:"conversation_root_id"`
	BranchLevel        int     `gorm:"default:0" json:"branch_level"`
	IsBranchRoot       bool    `gorm:"default:false" json:"is_branch_root"`

	LikesCount   int `gorm:"default:0" json:"likes_count"`
	RepliesCount int `gorm:"default:0" json:"replies_count"`
	SharesCount  int `gorm:"default:0" json:"shares_count"`
	ViewsCount   int `gorm:"default:0" json:"views_count"`

	IsDeleted  bool `gorm:"index;default:false" json:"is_deleted"`
	IsReported bool `gorm:"default:false" json:"is_reported"`

	// IsViewed is viewer-dependent and filled from the view-status store on
	// reads; it is never persisted.
	IsViewed bool `gorm:"-" json:"is_viewed"`
}

// PostLike is the membership row behind Post.LikesCount. Like is a toggle, so
// rows come and go; the pair index keeps membership a set.
type PostLike struct {
	Id        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"uniqueIndex:ux_like_pair;not null" json:"user_id"`
	PostID    string    `gorm:"uniqueIndex:ux_like_pair;index;not null" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PostShare is append-only: there is no unshare.
type PostShare struct {
	Id       string    `gorm:"primaryKey" json:"id"`
	UserID   string    `gorm:"uniqueIndex:ux_share_pair;not null" json:"user_id"`
	PostID   string    `gorm:"uniqueIndex:ux_share_pair;index;not null" json:"post_id"`
	SharedAt time.Time `json:"shared_at"`
}
