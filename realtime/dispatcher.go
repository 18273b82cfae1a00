package realtime

import (
	"github.com/branchmux/branchmux/model"
	. "github.com/branchmux/branchmux/utils/log"
)

const messagePreviewLimit = 50

/*
Dispatcher publishes graph and notification events to rooms.

Every Emit* entry point is best-effort: a delivery failure (typically "no
active connection") is logged and swallowed, never surfaced to the caller and
never rolled back against the state mutation that triggered it. Callers must
invoke Emit* strictly after their storage transaction commits.
*/
type Dispatcher struct {
	hub *Hub
}

func NewDispatcher(hub *Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// Hub exposes the underlying router, e.g. for presence lookups.
func (d *Dispatcher) Hub() *Hub {
	return d.hub
}

func (d *Dispatcher) emit(room string, ev *model.Event, excludeConnID string) {
	if err := d.hub.Broadcast(room, ev, excludeConnID); err != nil {
		Log.Debug("fanout skipped: ", ev.Event, " room: ", room, " reason: ", err)
	}
}

// EmitNewPost announces a freshly created post to the timeline.
func (d *Dispatcher) EmitNewPost(post *model.Post) {
	d.emit(RoomTimeline, &model.Event{
		Event:   model.EventNewPost,
		Payload: &PostPayload{Post: post},
	}, "")
}

// EmitPostUpdated announces an engagement change (likes, shares) on a post.
func (d *Dispatcher) EmitPostUpdated(post *model.Post) {
	d.emit(RoomTimeline, &model.Event{
		Event:   model.EventPostUpdated,
		Payload: &PostPayload{Post: post},
	}, "")
}

// EmitPostDeleted announces a cascade deletion. Only the root post id is
// broadcast; deleted descendants are implied.
func (d *Dispatcher) EmitPostDeleted(postID string) {
	d.emit(RoomTimeline, &model.Event{
		Event:   model.EventPostDeleted,
		Payload: &PostDeletedPayload{PostID: postID},
	}, "")
}

// EmitNewNotification pushes a persisted notification to its recipient.
func (d *Dispatcher) EmitNewNotification(n *model.Notification) {
	d.emit(UserRoom(n.UserID), &model.Event{
		Event:   model.EventNewNotification,
		Payload: &NotificationPayload{Notification: n},
	}, "")
}

// EmitNewMessage delivers a message to the pairwise conversation room, i.e.
// to participants actively viewing the conversation.
func (d *Dispatcher) EmitNewMessage(msg *model.Message, conversationID string) {
	d.emit(ConversationRoom(msg.SenderID, msg.RecipientID), &model.Event{
		Event:   model.EventNewMessage,
		Payload: &MessagePayload{Message: msg, ConversationID: conversationID},
	}, "")
}

// EmitMessageAlert pushes a transient alert to the recipient's private room,
// in addition to the persisted message, when the recipient is online.
func (d *Dispatcher) EmitMessageAlert(recipientID string, sender *model.User, content string, conversationID string) {
	if !d.hub.IsOnline(recipientID) {
		return
	}
	preview := content
	if len([]rune(content)) > messagePreviewLimit {
		preview = string([]rune(content)[:messagePreviewLimit]) + "..."
	}
	d.emit(UserRoom(recipientID), &model.Event{
		Event: model.EventMessageAlert,
		Payload: &MessageAlertPayload{
			Sender:         SummarizeUser(sender),
			Preview:        preview,
			ConversationID: conversationID,
		},
	}, "")
}

// EmitPresence broadcasts a user's online/offline transition to the timeline.
func (d *Dispatcher) EmitPresence(user *model.User, online bool) {
	event := model.EventUserOffline
	if online {
		event = model.EventUserOnline
	}
	d.emit(RoomTimeline, &model.Event{
		Event:   event,
		Payload: &PresencePayload{UserID: user.Id, Handle: user.Handle},
	}, "")
}

// EmitTyping broadcasts a typing indicator to the conversation room, skipping
// the typist's own connection.
func (d *Dispatcher) EmitTyping(user *model.User, otherUserID string, typing bool, selfConnID string) {
	d.emit(ConversationRoom(user.Id, otherUserID), &model.Event{
		Event:   model.EventUserTyping,
		Payload: &TypingPayload{UserID: user.Id, Handle: user.Handle, Typing: typing},
	}, selfConnID)
}

// EmitMessagesRead confirms a mark-read sweep back to the reader's own room.
func (d *Dispatcher) EmitMessagesRead(userID string, conversationID string, count int) {
	d.emit(UserRoom(userID), &model.Event{
		Event:   model.EventMessagesRead,
		Payload: &MessagesReadPayload{ConversationID: conversationID, Count: count},
	}, "")
}
