// Package server exposes the core over HTTP (gin) and websocket (gorilla).
// Handlers are thin: they parse, delegate to the services and map the error
// taxonomy onto status codes. Everything else lives in the service packages.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/branchmux/branchmux/content"
	"github.com/branchmux/branchmux/messaging"
	"github.com/branchmux/branchmux/notification"
	"github.com/branchmux/branchmux/server/middlewares"
	"github.com/branchmux/branchmux/status"
	"github.com/gin-gonic/gin"
)

type Server struct {
	graph    *content.Graph
	messages *messaging.Service
	notifier *notification.Engine
	gateway  *Gateway
}

func New(graph *content.Graph, messages *messaging.Service, notifier *notification.Engine, gateway *Gateway) *Server {
	return &Server{graph: graph, messages: messages, notifier: notifier, gateway: gateway}
}

// RegisterRoutes wires every handler onto the router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", s.gateway.Handler())

	router.GET("/timeline", s.GetTimeline)
	router.GET("/trending", s.GetTrending)
	router.GET("/posts/:id", s.GetPost)

	authed := router.Group("/", middlewares.RequireIdentity())
	{
		authed.POST("/posts", s.CreatePost)
		authed.DELETE("/posts/:id", s.DeletePost)
		authed.POST("/posts/:id/like", s.LikePost)
		authed.POST("/posts/:id/share", s.SharePost)

		authed.POST("/users/:id/follow", s.FollowUser)
		authed.DELETE("/users/:id/follow", s.UnfollowUser)

		authed.GET("/notifications", s.GetNotifications)
		authed.POST("/notifications/:id/read", s.MarkNotificationRead)
		authed.POST("/notifications/read_all", s.MarkAllNotificationsRead)
		authed.POST("/notifications/cleanup", s.CleanupNotifications)

		authed.POST("/messages", s.SendMessage)
		authed.GET("/messages/:userId", s.GetConversationMessages)
		authed.POST("/messages/:id/save", s.SaveMessage)
		authed.DELETE("/messages/:id", s.DeleteMessage)
		authed.GET("/conversations", s.ListConversations)
		authed.POST("/conversations/:id/read", s.MarkConversationRead)
	}
}

// abortWithError maps a service error onto the taxonomy's HTTP code. Internal
// failures surface only a generic message: partial state is already rolled
// back and details belong in the log, not the response.
func abortWithError(c *gin.Context, err error) {
	code := status.HTTPCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

type createPostRequest struct {
	Content  string  `json:"content" binding:"required"`
	ParentID *string `json:"parent_id"`
	IsBranch bool    `json:"is_branch"`
}

func (s *Server) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	post, err := s.graph.CreatePost(middlewares.CurrentUser(c), req.Content, req.ParentID, req.IsBranch)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

func (s *Server) GetPost(c *gin.Context) {
	maxDepth := intQuery(c, "max_depth", content.DefaultTreeDepth)
	post, tree, err := s.graph.GetPost(middlewares.CurrentUser(c), c.Param("id"), maxDepth)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post, "replies": tree})
}

func (s *Server) DeletePost(c *gin.Context) {
	if err := s.graph.DeletePost(middlewares.CurrentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_post_id": c.Param("id")})
}

func (s *Server) LikePost(c *gin.Context) {
	post, liked, err := s.graph.LikePost(middlewares.CurrentUser(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"likes_count": post.LikesCount,
		"is_liked":    liked,
	})
}

func (s *Server) SharePost(c *gin.Context) {
	post, err := s.graph.SharePost(middlewares.CurrentUser(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shares_count": post.SharesCount})
}

func (s *Server) GetTimeline(c *gin.Context) {
	posts, err := s.graph.GetTimeline(middlewares.CurrentUser(c),
		intQuery(c, "page", 1), intQuery(c, "per_page", 20))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) GetTrending(c *gin.Context) {
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", 20)
	posts, total, err := s.graph.GetTrending(time.Now(), page, perPage)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"pagination": gin.H{
			"page":     page,
			"total":    total,
			"has_next": page*perPage < total,
			"has_prev": page > 1,
		},
	})
}

func (s *Server) FollowUser(c *gin.Context) {
	if err := s.graph.FollowUser(middlewares.CurrentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": true})
}

func (s *Server) UnfollowUser(c *gin.Context) {
	if err := s.graph.UnfollowUser(middlewares.CurrentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": false})
}

func (s *Server) GetNotifications(c *gin.Context) {
	userID := middlewares.CurrentUser(c)
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", 20)
	notifications, err := s.notifier.List(userID, notification.ListOptions{
		Type:       c.Query("type"),
		UnreadOnly: c.Query("unread_only") == "true",
		Offset:     (page - 1) * perPage,
		Limit:      perPage,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	unread, err := s.notifier.UnreadCount(userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	if err := s.notifier.MarkRead(middlewares.CurrentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	count, err := s.notifier.MarkAllRead(middlewares.CurrentUser(c), c.Query("type"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": count})
}

// CleanupNotifications triggers the retention sweep on demand, in addition to
// the scheduled sweeper.
func (s *Server) CleanupNotifications(c *gin.Context) {
	purged, err := s.notifier.CleanupOld(time.Now())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

func (s *Server) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient and content required"})
		return
	}
	msg, conv, err := s.messages.SendMessage(middlewares.CurrentUser(c), req.RecipientID, req.Content)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message_data":    msg,
		"conversation_id": conv.Id,
	})
}

func (s *Server) SaveMessage(c *gin.Context) {
	if err := s.messages.SaveMessage(middlewares.CurrentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

func (s *Server) DeleteMessage(c *gin.Context) {
	if err := s.messages.DeleteForUser(middlewares.CurrentUser(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) MarkConversationRead(c *gin.Context) {
	count, err := s.messages.MarkConversationRead(middlewares.CurrentUser(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": count})
}

func (s *Server) GetConversationMessages(c *gin.Context) {
	messages, err := s.messages.GetConversationMessages(
		middlewares.CurrentUser(c), c.Param("userId"), intQuery(c, "limit", 50))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) ListConversations(c *gin.Context) {
	conversations, err := s.messages.ListConversations(middlewares.CurrentUser(c),
		intQuery(c, "page", 1), intQuery(c, "per_page", 20))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}
