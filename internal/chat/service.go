// Package chat sequences one conversational turn: validate the input, resolve
// the conversation, replay its history to the model, record both halves of the
// exchange, and name the conversation after its first reply.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/history"
	"github.com/RichardoC/pad-chat/internal/llm"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/RichardoC/pad-chat/internal/session"
	"go.uber.org/zap"
)

const conversationCreatedResponse = "New conversation created."

type Service struct {
	store    db.Store
	sessions *session.Manager
	model    llm.ModelClient
	titles   session.TitleGenerator
	logger   *zap.Logger
}

func NewService(store db.Store, model llm.ModelClient, titles session.TitleGenerator, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		sessions: session.NewManager(store, logger),
		model:    model,
		titles:   titles,
		logger:   logger,
	}
}

type Request struct {
	Owner          string
	ConversationID string
	Input          string
}

type Reply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

// Exchange is what GenerateAndRecord did: the history it replayed, the reply,
// and the turns it stored.
type Exchange struct {
	Prior     []models.Message
	Reply     string
	UserTurn  *models.Turn
	ReplyTurn *models.Turn
}

func (s *Service) HandleMessage(ctx context.Context, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Input) == "" {
		s.logger.Warn("input message is missing", zap.String("owner", req.Owner))
		return nil, models.ErrMissingInput
	}

	conv, created, err := s.sessions.ResolveOrCreate(ctx, req.ConversationID, req.Owner)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("conversation not found",
				zap.String("conversation_id", req.ConversationID),
				zap.String("owner", req.Owner))
			return nil, err
		}
		return nil, &models.PersistenceError{Op: "resolve conversation", Err: err}
	}

	log := s.logger.With(zap.String("conversation_id", conv.ID))
	if created {
		log.Info("started conversation for message", zap.String("owner", req.Owner))
	}

	ex, err := s.GenerateAndRecord(ctx, history.New(s.store, conv.ID), req.Input)
	if err != nil {
		log.Error("failed to handle message", zap.Error(err))
		return nil, err
	}
	log.Debug("model replied", zap.Int("prior_messages", len(ex.Prior)))

	s.renameIfPlaceholder(ctx, conv, ex.Reply)

	return &Reply{
		Response:       ex.Reply,
		ConversationID: conv.ID,
		Title:          conv.Title,
	}, nil
}

// GenerateAndRecord replays the stored history plus input to the model and, on
// success, appends the user message then the reply. A failed generation stores
// nothing. If the reply append fails after the user append succeeded, the user
// turn stays without an answer.
func (s *Service) GenerateAndRecord(ctx context.Context, h *history.History, input string) (*Exchange, error) {
	prior, err := h.Load(ctx)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSession) {
			return nil, err
		}
		return nil, &models.PersistenceError{Op: "load history", Err: err}
	}

	reply, err := s.model.Generate(ctx, prior, input)
	if err != nil {
		return nil, &models.UpstreamError{Op: "generate reply", Err: err}
	}

	ex := &Exchange{Prior: prior, Reply: reply}
	if ex.UserTurn, err = h.Append(ctx, models.UserMessage(input)); err != nil {
		return nil, &models.PersistenceError{Op: "store user message", Err: err}
	}
	if ex.ReplyTurn, err = h.Append(ctx, models.AssistantMessage(reply)); err != nil {
		return nil, &models.PersistenceError{Op: "store reply", Err: err}
	}
	return ex, nil
}

// renameIfPlaceholder names a conversation after its first reply. Failures are
// logged and leave the placeholder in place.
func (s *Service) renameIfPlaceholder(ctx context.Context, conv *models.Conversation, reply string) {
	if s.titles == nil || !session.IsPlaceholder(conv.Title) {
		return
	}
	if _, err := s.sessions.MaybeRename(ctx, conv, reply, s.titles); err != nil {
		s.logger.Error("failed to rename conversation",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}
}

// CreateConversation starts a conversation for owner. With an initial message
// the first turn runs right away and the conversation is named after it.
func (s *Service) CreateConversation(ctx context.Context, owner, initialMessage string) (*Reply, error) {
	conv, err := s.sessions.Create(ctx, owner)
	if err != nil {
		return nil, &models.PersistenceError{Op: "create conversation", Err: err}
	}

	out := &Reply{
		Response:       conversationCreatedResponse,
		ConversationID: conv.ID,
		Title:          conv.Title,
	}
	if strings.TrimSpace(initialMessage) == "" {
		return out, nil
	}

	ex, err := s.GenerateAndRecord(ctx, history.New(s.store, conv.ID), initialMessage)
	if err != nil {
		s.logger.Error("failed to answer initial message",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return nil, err
	}
	s.renameIfPlaceholder(ctx, conv, ex.Reply)

	out.Response = ex.Reply
	out.Title = conv.Title
	return out, nil
}

func (s *Service) ListConversations(ctx context.Context, owner string) ([]models.Conversation, error) {
	convs, err := s.sessions.List(ctx, owner)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list conversations", Err: err}
	}
	return convs, nil
}

// ChatHistory returns a conversation and its stored turns, oldest first.
func (s *Service) ChatHistory(ctx context.Context, owner, conversationID string) (*models.Conversation, []models.Turn, error) {
	conv, err := s.sessions.Get(ctx, conversationID, owner)
	if err != nil {
		return nil, nil, err
	}
	turns, err := s.store.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, nil, &models.PersistenceError{Op: "list turns", Err: err}
	}
	return conv, turns, nil
}

func (s *Service) ClearHistory(ctx context.Context, owner, conversationID string) error {
	conv, err := s.sessions.Get(ctx, conversationID, owner)
	if err != nil {
		return err
	}
	if err := history.New(s.store, conv.ID).Clear(ctx); err != nil {
		return &models.PersistenceError{Op: "clear history", Err: err}
	}
	s.logger.Info("cleared conversation history", zap.String("conversation_id", conv.ID))
	return nil
}
