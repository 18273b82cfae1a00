package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/branchmux/branchmux/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(conn *Connection) []*model.Event {
	var events []*model.Event
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestConnectJoinsDefaultRooms(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	conn := hub.Connect(ctx, "user-1")
	defer hub.Disconnect(conn)

	assert.Equal(t, 1, hub.ActiveConnectionCount())
	assert.True(t, hub.IsOnline("user-1"))

	require.NoError(t, hub.Broadcast(RoomTimeline, &model.Event{Event: "a"}, ""))
	require.NoError(t, hub.Broadcast(UserRoom("user-1"), &model.Event{Event: "b"}, ""))
	assert.Len(t, drain(conn), 2)
}

func TestAnonymousConnectionHasNoPresence(t *testing.T) {
	hub := NewHub()
	conn := hub.Connect(context.Background(), "")
	defer hub.Disconnect(conn)

	assert.True(t, conn.Anonymous())
	assert.Equal(t, 1, hub.ActiveConnectionCount())
	assert.False(t, hub.IsOnline(""))

	require.NoError(t, hub.Broadcast(RoomTimeline, &model.Event{Event: "a"}, ""))
	assert.Len(t, drain(conn), 1)
}

func TestReconnectEvictsPreviousConnection(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	first := hub.Connect(ctx, "user-1")
	second := hub.Connect(ctx, "user-1")
	defer hub.Disconnect(second)

	assert.Equal(t, 1, hub.ActiveConnectionCount())
	assert.True(t, hub.IsOnline("user-1"))

	// The evicted connection's channel closes; the new one keeps receiving.
	_, open := <-first.Events()
	assert.False(t, open)
	require.NoError(t, hub.Broadcast(UserRoom("user-1"), &model.Event{Event: "a"}, ""))
	assert.Len(t, drain(second), 1)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	hub := NewHub()
	conn := hub.Connect(context.Background(), "user-1")

	hub.Disconnect(conn)
	hub.Disconnect(conn)

	assert.Zero(t, hub.ActiveConnectionCount())
	assert.False(t, hub.IsOnline("user-1"))
	err := hub.Broadcast(RoomTimeline, &model.Event{Event: "a"}, "")
	assert.Error(t, err)
}

func TestContextCancelCleansUp(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	conn := hub.Connect(ctx, "user-1")
	require.True(t, hub.IsOnline("user-1"))

	cancel()
	assert.Eventually(t, func() bool {
		return !hub.IsOnline("user-1") && hub.ActiveConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-conn.Events()
	assert.False(t, open)
}

func TestConversationRoomIsCanonical(t *testing.T) {
	assert.Equal(t, ConversationRoom("a", "b"), ConversationRoom("b", "a"))
	assert.Equal(t, "conversation:a:b", ConversationRoom("b", "a"))
}

func TestBroadcastTargetsRoomMembersOnly(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	alice := hub.Connect(ctx, "alice")
	bob := hub.Connect(ctx, "bob")
	carol := hub.Connect(ctx, "carol")
	defer func() {
		hub.Disconnect(alice)
		hub.Disconnect(bob)
		hub.Disconnect(carol)
	}()

	room := ConversationRoom("alice", "bob")
	hub.JoinRoom(alice, room)
	hub.JoinRoom(bob, room)

	require.NoError(t, hub.Broadcast(room, &model.Event{Event: "a"}, ""))
	assert.Len(t, drain(alice), 1)
	assert.Len(t, drain(bob), 1)
	assert.Empty(t, drain(carol))

	// Exclusion skips the named connection.
	require.NoError(t, hub.Broadcast(room, &model.Event{Event: "b"}, alice.Id))
	assert.Empty(t, drain(alice))
	assert.Len(t, drain(bob), 1)

	// Leaving stops delivery; an empty room reports the failure.
	hub.LeaveRoom(alice, room)
	hub.LeaveRoom(bob, room)
	assert.Error(t, hub.Broadcast(room, &model.Event{Event: "c"}, ""))
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	conn := hub.Connect(context.Background(), "user-1")
	defer hub.Disconnect(conn)

	for i := 0; i < sendBuffer+5; i++ {
		require.NoError(t, hub.Broadcast(RoomTimeline, &model.Event{Event: "a"}, ""))
	}
	// Overflow is dropped, not blocked on.
	assert.Len(t, drain(conn), sendBuffer)
}
