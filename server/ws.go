package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/branchmux/branchmux/messaging"
	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/realtime"
	"github.com/branchmux/branchmux/server/middlewares"
	. "github.com/branchmux/branchmux/utils/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens at the proxy in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway terminates websocket connections and speaks the client event
// protocol: it feeds inbound frames into the services and forwards fan-out
// events from the hub onto the wire.
type Gateway struct {
	db         *gorm.DB
	hub        *realtime.Hub
	dispatcher *realtime.Dispatcher
	messages   *messaging.Service
}

func NewGateway(db *gorm.DB, hub *realtime.Hub, dispatcher *realtime.Dispatcher, messages *messaging.Service) *Gateway {
	return &Gateway{db: db, hub: hub, dispatcher: dispatcher, messages: messages}
}

// clientFrame is one inbound websocket message.
type clientFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type conversationRef struct {
	UserID string `json:"user_id"`
}

type wsSendMessage struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type wsMarkRead struct {
	ConversationID string `json:"conversation_id"`
}

// Handler upgrades the request and runs the connection until the peer goes
// away. Anonymous peers join the timeline read-only; authenticated peers get
// presence, their private room and the conversation operations.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			Log.Warn("websocket upgrade failed: ", err)
			return
		}

		userID := middlewares.CurrentUser(c)
		var user *model.User
		if userID != "" {
			user, err = g.connectUser(userID)
			if err != nil {
				Log.Warn("websocket identity rejected: ", err)
				ws.Close()
				return
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		conn := g.hub.Connect(ctx, userID)

		// local carries gateway-origin frames (greetings, errors, acks) into
		// the single write pump, so nothing else ever writes to ws directly.
		local := make(chan *model.Event, 8)
		go g.writePump(ws, conn, local)

		sendLocal(local, &model.Event{Event: "connected", Payload: gin.H{"user_id": userID}})
		if user != nil {
			g.dispatcher.EmitPresence(user, true)
		}

		g.readLoop(ws, conn, user, local)

		// Teardown: presence, lastSeen and the user's side of unsaved
		// messages all go together with the session.
		cancel()
		g.hub.Disconnect(conn)
		ws.Close()
		if user != nil {
			g.disconnectUser(user)
			g.dispatcher.EmitPresence(user, false)
			if err := g.messages.CleanupEphemeral(user.Id); err != nil {
				Log.Error("ephemeral cleanup failed for user ", user.Id, ": ", err)
			}
		}
	}
}

// connectUser resolves the authenticated identity against the user directory
// and stamps lastSeen.
func (g *Gateway) connectUser(userID string) (*model.User, error) {
	var user model.User
	err := g.db.Where("id = ? AND is_active = ?", userID, true).First(&user).Error
	if err != nil {
		return nil, errors.Wrap(err, "unknown user "+userID)
	}
	g.db.Model(&user).Update("last_seen", time.Now())
	return &user, nil
}

func (g *Gateway) disconnectUser(user *model.User) {
	g.db.Model(user).Update("last_seen", time.Now())
}

// writePump is the only writer on ws. It multiplexes hub fan-out with
// gateway-local frames and keeps the connection alive with pings. Exits when
// the hub closes the connection's event channel.
func (g *Gateway) writePump(ws *websocket.Conn, conn *realtime.Connection, local chan *model.Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			g.write(ws, ev)
		case ev := <-local:
			g.write(ws, ev)
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) write(ws *websocket.Conn, ev *model.Event) {
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(ev); err != nil {
		Log.Debug("websocket write failed: ", err)
	}
}

func sendLocal(local chan *model.Event, ev *model.Event) {
	select {
	case local <- ev:
	default:
	}
}

func sendError(local chan *model.Event, message string) {
	sendLocal(local, &model.Event{Event: "error", Payload: gin.H{"message": message}})
}

func (g *Gateway) readLoop(ws *websocket.Conn, conn *realtime.Connection, user *model.User, local chan *model.Event) {
	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debug("websocket closed unexpectedly: ", err)
			}
			return
		}
		g.handleFrame(frame, conn, user, local)
	}
}

func (g *Gateway) handleFrame(frame clientFrame, conn *realtime.Connection, user *model.User, local chan *model.Event) {
	switch frame.Event {
	case model.ClientEventJoinConversation, model.ClientEventLeaveConversation:
		// Authenticated-only; silently a no-op for anonymous peers.
		if user == nil {
			return
		}
		var ref conversationRef
		if json.Unmarshal(frame.Payload, &ref) != nil || ref.UserID == "" {
			return
		}
		room := realtime.ConversationRoom(user.Id, ref.UserID)
		if frame.Event == model.ClientEventJoinConversation {
			g.hub.JoinRoom(conn, room)
			sendLocal(local, &model.Event{Event: "joined_conversation", Payload: gin.H{"room": room}})
		} else {
			g.hub.LeaveRoom(conn, room)
			sendLocal(local, &model.Event{Event: "left_conversation", Payload: gin.H{"room": room}})
		}

	case model.ClientEventSendMessage:
		if user == nil {
			sendError(local, "authentication required")
			return
		}
		var req wsSendMessage
		if json.Unmarshal(frame.Payload, &req) != nil || req.RecipientID == "" || req.Content == "" {
			sendError(local, "recipient and content required")
			return
		}
		msg, conv, err := g.messages.SendMessage(user.Id, req.RecipientID, req.Content)
		if err != nil {
			Log.Info("websocket send_message failed: ", err)
			sendError(local, "failed to send message")
			return
		}
		sendLocal(local, &model.Event{Event: "message_sent", Payload: &realtime.MessagePayload{
			Message:        msg,
			ConversationID: conv.Id,
		}})

	case model.ClientEventTypingStart, model.ClientEventTypingStop:
		if user == nil {
			return
		}
		var ref conversationRef
		if json.Unmarshal(frame.Payload, &ref) != nil || ref.UserID == "" {
			return
		}
		typing := frame.Event == model.ClientEventTypingStart
		g.dispatcher.EmitTyping(user, ref.UserID, typing, conn.Id)

	case model.ClientEventMarkMessagesRead:
		if user == nil {
			return
		}
		var req wsMarkRead
		if json.Unmarshal(frame.Payload, &req) != nil || req.ConversationID == "" {
			return
		}
		if _, err := g.messages.MarkConversationRead(user.Id, req.ConversationID); err != nil {
			Log.Info("websocket mark_messages_read failed: ", err)
			sendError(local, "failed to mark messages as read")
		}

	default:
		sendError(local, "unknown event: "+frame.Event)
	}
}
