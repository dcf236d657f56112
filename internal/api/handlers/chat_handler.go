package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"

	"saleschat/internal/dto"
	"saleschat/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// modelCookie selects the chat model per browser. Unset means the configured
// default model.
const modelCookie = "chat-model"

type ChatHandler struct {
	chats  *service.ChatService
	logger *zap.Logger
}

func NewChatHandler(chats *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chats:  chats,
		logger: logger,
	}
}

func currentUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("userID").(string)
	return userID
}

func chatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		return fiber.NewError(fiber.StatusNotFound, "chat not found")
	case errors.Is(err, service.ErrUnauthorized):
		return fiber.NewError(fiber.StatusForbidden, "chat belongs to another user")
	default:
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			return fiber.NewError(fiber.StatusBadRequest, vErr.Error())
		}
		return err
	}
}

func (h *ChatHandler) CreateChat(c *fiber.Ctx) error {
	var req dto.CreateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	chat, err := h.chats.CreateChat(c.Context(), currentUserID(c), req.Title)
	if err != nil {
		return chatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.ToChatResponse(chat))
}

func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	chats, err := h.chats.ListChats(c.Context(), currentUserID(c), limit, offset)
	if err != nil {
		return chatError(c, err)
	}

	out := make([]dto.ChatResponse, 0, len(chats))
	for _, chat := range chats {
		out = append(out, dto.ToChatResponse(chat))
	}

	return c.JSON(out)
}

func (h *ChatHandler) DeleteChat(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	if err := h.chats.DeleteChat(c.Context(), currentUserID(c), chatID); err != nil {
		return chatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	messages, err := h.chats.GetMessages(c.Context(), currentUserID(c), chatID)
	if err != nil {
		return chatError(c, err)
	}

	out := make([]dto.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, dto.ToMessageResponse(msg))
	}

	return c.JSON(out)
}

func (h *ChatHandler) Vote(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.chats.Vote(c.Context(), currentUserID(c), chatID, messageID, req.IsUpvoted); err != nil {
		return chatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type streamEvent struct {
	Type    string               `json:"type"`
	Delta   string               `json:"delta,omitempty"`
	Error   string               `json:"error,omitempty"`
	Message *dto.MessageResponse `json:"message,omitempty"`
}

// SendMessage runs one conversational turn, streaming content tokens as
// server-sent events and closing with the persisted assistant message.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message must not be empty")
	}

	// Ownership is checked up front so authorization failures surface as
	// HTTP statuses, not mid-stream errors.
	if _, err := h.chats.GetMessages(c.Context(), currentUserID(c), chatID); err != nil {
		return chatError(c, err)
	}

	userID := currentUserID(c)
	model := c.Cookies(modelCookie)
	message := req.Message

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// The fiber context is recycled once this handler returns; the stream
	// body runs afterwards and must not touch it.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()

		onDelta := func(delta string) {
			writeEvent(w, streamEvent{Type: "text-delta", Delta: delta})
		}

		msg, err := h.chats.StreamTurn(ctx, userID, chatID, model, message, onDelta)
		if err != nil {
			h.logger.Error("Chat turn failed", zap.Error(err))
			writeEvent(w, streamEvent{Type: "error", Error: "failed to complete the chat turn"})
			return
		}

		resp := dto.ToMessageResponse(msg)
		writeEvent(w, streamEvent{Type: "message", Message: &resp})
		_, _ = w.WriteString("data: [DONE]\n\n")
		_ = w.Flush()
	})

	return nil
}

func writeEvent(w *bufio.Writer, event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = w.WriteString("data: ")
	_, _ = w.Write(payload)
	_, _ = w.WriteString("\n\n")
	_ = w.Flush()
}
