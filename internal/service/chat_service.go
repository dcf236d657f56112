package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saleschat/internal/models"
	"saleschat/internal/tools"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrUnauthorized = errors.New("chat belongs to another user")
)

// maxToolRounds bounds the tool loop in one turn. The model is expected to
// answer within a couple of tool calls; anything past this is a loop.
const maxToolRounds = 5

const systemPrompt = `You are a sales data assistant. You answer questions about a sales transactions dataset.
Use the available tools to query the data; never invent numbers.
When a tool reports that no records matched, say so plainly instead of guessing.
Keep answers concise and grounded in the tool results.`

// ChatStore is the conversation persistence the orchestrator needs.
// *repository.ChatRepository implements it.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListChatsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Chat, error)
	DeleteChat(ctx context.Context, id uuid.UUID) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error)
	UpsertVote(ctx context.Context, vote *models.Vote) error
}

// ModelClient is the streaming conversational model behind the orchestrator.
type ModelClient interface {
	StreamChat(ctx context.Context, model, system string, messages []ChatMessage, toolSpecs []tools.Spec, onDelta func(string)) (*ChatResult, error)
	DefaultModel() string
}

// ContextRetriever supplies free-text dataset context for a user question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// ToolDispatcher is the tool menu plus its validating dispatch.
type ToolDispatcher interface {
	Specs() []tools.Spec
	Dispatch(ctx context.Context, name, rawArgs string) (string, error)
}

// ChatService orchestrates one conversational turn: persist the user
// message, stream the model with the tool menu, run requested tools, feed
// results back, and persist the final assistant message with its parts.
type ChatService struct {
	store     ChatStore
	model     ModelClient
	registry  ToolDispatcher
	retriever ContextRetriever
	logger    *zap.Logger
}

func NewChatService(
	store ChatStore,
	model ModelClient,
	registry ToolDispatcher,
	retriever ContextRetriever,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		store:     store,
		model:     model,
		registry:  registry,
		retriever: retriever,
		logger:    logger,
	}
}

const chatTitleLimit = 80

// CreateChat opens a new conversation, titled from the first message.
func (s *ChatService) CreateChat(ctx context.Context, userID, title string) (*models.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}
	if len(title) > chatTitleLimit {
		title = title[:chatTitleLimit]
	}

	now := time.Now().UTC()
	chat := &models.Chat{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, userID string, limit, offset int) ([]*models.Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListChatsByUser(ctx, userID, limit, offset)
}

// ownedChat loads a chat and rejects access by anyone but its owner. Every
// chat-scoped operation goes through this check before any side effect.
func (s *ChatService) ownedChat(ctx context.Context, userID string, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if chat.UserID != userID {
		return nil, ErrUnauthorized
	}
	return chat, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, userID string, chatID uuid.UUID) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.store.DeleteChat(ctx, chatID)
}

func (s *ChatService) GetMessages(ctx context.Context, userID string, chatID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID)
}

// Vote records an up/down vote on one message of an owned chat.
func (s *ChatService) Vote(ctx context.Context, userID string, chatID, messageID uuid.UUID, isUpvoted bool) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.store.UpsertVote(ctx, &models.Vote{
		ChatID:    chatID,
		MessageID: messageID,
		IsUpvoted: isUpvoted,
	})
}

// StreamTurn runs one full conversational turn. Content tokens stream
// through onDelta as they arrive; the persisted assistant message is
// returned once the turn completes.
func (s *ChatService) StreamTurn(
	ctx context.Context,
	userID string,
	chatID uuid.UUID,
	model string,
	userText string,
	onDelta func(string),
) (*models.Message, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	userMsg := &models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      models.RoleUser,
		Content:   userText,
		Parts:     []models.MessagePart{{Type: models.PartText, Text: userText}},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	history, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	conversation := historyToMessages(history)
	system := s.buildSystemPrompt(ctx, userText)

	var parts []models.MessagePart
	var finalContent string

	for round := 0; ; round++ {
		result, err := s.model.StreamChat(ctx, model, system, conversation, s.registry.Specs(), onDelta)
		if err != nil {
			return nil, fmt.Errorf("model turn failed: %w", err)
		}

		if result.Reasoning != "" {
			parts = append(parts, models.MessagePart{Type: models.PartReasoning, Text: result.Reasoning})
		}
		if result.Content != "" {
			parts = append(parts, models.MessagePart{Type: models.PartText, Text: result.Content})
			finalContent = result.Content
		}

		if len(result.ToolCalls) == 0 {
			break
		}
		if round >= maxToolRounds {
			s.logger.Warn("Tool round limit reached, ending turn",
				zap.String("chatID", chatID.String()),
				zap.Int("rounds", round),
			)
			break
		}

		conversation = append(conversation, ChatMessage{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})

		for _, call := range result.ToolCalls {
			parts = append(parts, models.MessagePart{
				Type:       models.PartToolCall,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Arguments:  call.Arguments,
			})

			output, err := s.registry.Dispatch(ctx, call.Name, call.Arguments)
			if err != nil {
				output = userFacingToolError(err)
				s.logger.Warn("Tool call failed",
					zap.String("tool", call.Name),
					zap.Error(err),
				)
			}

			parts = append(parts, models.MessagePart{
				Type:       models.PartToolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     output,
			})
			conversation = append(conversation, ChatMessage{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	assistantMsg := &models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Content:   sanitizeUTF8(finalContent),
		Parts:     sanitizeParts(parts),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	return assistantMsg, nil
}

// buildSystemPrompt extends the base instruction with retrieved dataset
// context. Retrieval failures degrade to the base prompt; a broken
// embeddings backend must not take the whole chat down.
func (s *ChatService) buildSystemPrompt(ctx context.Context, userText string) string {
	if s.retriever == nil {
		return systemPrompt
	}

	contextText, err := s.retriever.Retrieve(ctx, userText)
	if err != nil {
		s.logger.Warn("Context retrieval failed, continuing without it", zap.Error(err))
		return systemPrompt
	}
	if contextText == "" || contextText == NoRelevantRecordsMessage {
		return systemPrompt
	}

	return systemPrompt + "\n\nRelevant sales records for this question:\n" + contextText
}

func historyToMessages(history []*models.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		// Tool parts of past turns are summarized into the flat content when
		// the message was persisted; replaying raw tool traffic is not needed.
		out = append(out, ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

// userFacingToolError turns a dispatch failure into text the model can relay.
// The model sees why the call failed, not a bare error string.
func userFacingToolError(err error) string {
	var argErr *tools.ArgumentError
	var execErr *tools.ExecutionError
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		return "Error: the requested tool does not exist."
	case errors.As(err, &argErr):
		return fmt.Sprintf("Error: the arguments for %s were invalid and could not be repaired: %v.", argErr.Tool, argErr.Err)
	case errors.As(err, &execErr):
		return fmt.Sprintf("Error: %s failed while running: %v.", execErr.Tool, execErr.Err)
	default:
		return fmt.Sprintf("Error: tool call failed: %v.", err)
	}
}

// sanitizeParts drops empty text parts and tool calls whose result never
// arrived, so persisted turns always pair calls with results.
func sanitizeParts(parts []models.MessagePart) []models.MessagePart {
	resolved := make(map[string]bool)
	for _, p := range parts {
		if p.Type == models.PartToolResult && p.ToolCallID != "" {
			resolved[p.ToolCallID] = true
		}
	}

	out := make([]models.MessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case models.PartText, models.PartReasoning:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
		case models.PartToolCall:
			if !resolved[p.ToolCallID] {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
