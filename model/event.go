package model

// Realtime event names pushed to clients. These strings are the wire protocol
// surface and must not be renamed.
const (
	EventNewPost          = "new_post"
	EventPostUpdated      = "post_updated"
	EventPostDeleted      = "post_deleted"
	EventNewNotification  = "new_notification"
	EventNewMessage       = "new_message"
	EventMessageAlert     = "message_alert"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventUserTyping       = "user_typing"
	EventMessagesRead     = "messages_marked_read"
)

// Client-to-server event names understood by the realtime gateway.
const (
	ClientEventJoinConversation  = "join_conversation"
	ClientEventLeaveConversation = "leave_conversation"
	ClientEventSendMessage       = "send_message"
	ClientEventTypingStart       = "typing_start"
	ClientEventTypingStop        = "typing_stop"
	ClientEventMarkMessagesRead  = "mark_messages_read"
)

// Event is the envelope delivered to a connection. Payload is one of the
// payload structs in the realtime package.
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}
