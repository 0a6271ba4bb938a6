package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/RichardoC/pad-chat/internal/chat"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatService is the part of chat.Service the handlers call.
type ChatService interface {
	HandleMessage(ctx context.Context, req chat.Request) (*chat.Reply, error)
	CreateConversation(ctx context.Context, owner, initialMessage string) (*chat.Reply, error)
	ListConversations(ctx context.Context, owner string) ([]models.Conversation, error)
	ChatHistory(ctx context.Context, owner, conversationID string) (*models.Conversation, []models.Turn, error)
	ClearHistory(ctx context.Context, owner, conversationID string) error
}

type Handler struct {
	chat   ChatService
	logger *zap.Logger
}

func NewHandler(chatService ChatService, logger *zap.Logger) *Handler {
	return &Handler{
		chat:   chatService,
		logger: logger,
	}
}

type MessageRequest struct {
	InputMessage   string `json:"input_message"`
	ConversationID string `json:"conversation_id"`
}

type CreateConversationRequest struct {
	InitialMessage string `json:"initial_message"`
}

type ChatHistoryResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Turn        `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) HandleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	reply, err := h.chat.HandleMessage(c.Request.Context(), chat.Request{
		Owner:          userID(c),
		ConversationID: req.ConversationID,
		Input:          req.InputMessage,
	})
	if err != nil {
		h.fail(c, "Failed to handle message", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) GetConversations(c *gin.Context) {
	conversations, err := h.chat.ListConversations(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, "Failed to get conversations", err)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("path", c.Request.URL.Path))
	c.JSON(http.StatusOK, conversations)
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	reply, err := h.chat.CreateConversation(c.Request.Context(), userID(c), req.InitialMessage)
	if err != nil {
		h.logger.Error("Failed to create conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error while creating conversation."})
		return
	}
	c.JSON(http.StatusCreated, reply)
}

// GetChatHistory reports every failure, including a missing conversation, as 500.
func (h *Handler) GetChatHistory(c *gin.Context) {
	id := c.Param("conversation_id")
	conv, turns, err := h.chat.ChatHistory(c.Request.Context(), userID(c), id)
	if err != nil {
		h.logger.Error("Failed to fetch chat history",
			zap.String("conversation_id", id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error while fetching chat history."})
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	c.JSON(http.StatusOK, ChatHistoryResponse{Conversation: conv, Messages: turns})
}

func (h *Handler) ClearChatHistory(c *gin.Context) {
	if err := h.chat.ClearHistory(c.Request.Context(), userID(c), c.Param("conversation_id")); err != nil {
		h.fail(c, "Failed to clear chat history", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps service errors onto status codes. 500 responses carry the
// underlying message.
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrMissingInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidSession):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
	} else {
		h.logger.Warn(msg, fields...)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

// Register mounts the routes. Everything under /api requires a token signed
// with jwtSecret.
func (h *Handler) Register(r *gin.Engine, jwtSecret string) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api", JWTAuth(jwtSecret))
	api.POST("/handle-message/", h.HandleMessage)
	api.GET("/get-conversations/", h.GetConversations)
	api.POST("/create-conversation/", h.CreateConversation)
	api.GET("/chat-history/:conversation_id/", h.GetChatHistory)
	api.DELETE("/chat-history/:conversation_id/", h.ClearChatHistory)
}
