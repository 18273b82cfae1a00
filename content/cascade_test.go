package content

import (
	"fmt"
	"testing"

	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteCascadesWholeSubtree(t *testing.T) {
	graph, db := newTestGraph(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	root, err := graph.CreatePost(alice.Id, "root", nil, false)
	require.NoError(t, err)
	child, err := graph.CreatePost(bob.Id, "child", &root.Id, false)
	require.NoError(t, err)
	grandchild, err := graph.CreatePost(alice.Id, "grandchild", &child.Id, false)
	require.NoError(t, err)

	require.NoError(t, graph.DeletePost(alice.Id, root.Id))

	for _, id := range []string{root.Id, child.Id, grandchild.Id} {
		assert.True(t, reloadPost(t, db, id).IsDeleted, "post %s should be deleted", id)
	}
}

func TestDeleteDecrementsExternalParentByOne(t *testing.T) {
	graph, db := newTestGraph(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	ancestor, err := graph.CreatePost(alice.Id, "ancestor", nil, false)
	require.NoError(t, err)
	target, err := graph.CreatePost(alice.Id, "target", &ancestor.Id, false)
	require.NoError(t, err)
	// Give the target a subtree bigger than one node.
	for i := 0; i < 3; i++ {
		_, err := graph.CreatePost(bob.Id, fmt.Sprintf("reply %d", i), &target.Id, false)
		require.NoError(t, err)
	}
	require.Equal(t, 1, reloadPost(t, db, ancestor.Id).RepliesCount)
	require.Equal(t, 3, reloadPost(t, db, target.Id).RepliesCount)

	require.NoError(t, graph.DeletePost(alice.Id, target.Id))

	// The ancestor loses exactly one reply, regardless of subtree size.
	assert.Equal(t, 0, reloadPost(t, db, ancestor.Id).RepliesCount)
	assert.False(t, reloadPost(t, db, ancestor.Id).IsDeleted)
}

func TestDeleteDeepThread(t *testing.T) {
	graph, db := newTestGraph(t)
	alice := createTestUser(t, db, "alice")

	root, err := graph.CreatePost(alice.Id, "root", nil, false)
	require.NoError(t, err)
	parentID := root.Id
	ids := []string{root.Id}
	for i := 0; i < 40; i++ {
		reply, err := graph.CreatePost(alice.Id, fmt.Sprintf("level %d", i), &parentID, false)
		require.NoError(t, err)
		parentID = reply.Id
		ids = append(ids, reply.Id)
	}

	require.NoError(t, graph.DeletePost(alice.Id, root.Id))

	var live int64
	require.NoError(t, db.Model(&model.Post{}).Where("is_deleted = ?", false).Count(&live).Error)
	assert.Zero(t, live)
	assert.Len(t, ids, 41)
}

func TestDeleteAuthorization(t *testing.T) {
	graph, db := newTestGraph(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	post, err := graph.CreatePost(alice.Id, "mine", nil, false)
	require.NoError(t, err)

	// A non-owner gets the same NotFound a missing post would produce.
	err = graph.DeletePost(bob.Id, post.Id)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	assert.False(t, reloadPost(t, db, post.Id).IsDeleted)

	err = graph.DeletePost(alice.Id, "no-such-post")
	assert.True(t, errors.Is(err, status.ErrNotFound))

	err = graph.DeletePost("", post.Id)
	assert.True(t, errors.Is(err, status.ErrUnauthorized))

	// Deleting twice: the second call sees a deleted post, hence NotFound.
	require.NoError(t, graph.DeletePost(alice.Id, post.Id))
	err = graph.DeletePost(alice.Id, post.Id)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}
