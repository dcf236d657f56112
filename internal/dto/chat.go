package dto

import (
	"time"

	"saleschat/internal/models"
)

type CreateChatRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type VoteRequest struct {
	MessageID string `json:"messageId"`
	IsUpvoted bool   `json:"isUpvoted"`
}

type ChatResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type MessagePartResponse struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Result     string `json:"result,omitempty"`
}

type MessageResponse struct {
	ID        string                `json:"id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	Parts     []MessagePartResponse `json:"parts,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
}

func ToChatResponse(chat *models.Chat) ChatResponse {
	return ChatResponse{
		ID:        chat.ID.String(),
		Title:     chat.Title,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
}

func ToMessageResponse(msg *models.Message) MessageResponse {
	parts := make([]MessagePartResponse, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		parts = append(parts, MessagePartResponse{
			Type:       p.Type,
			Text:       p.Text,
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Arguments:  p.Arguments,
			Result:     p.Result,
		})
	}
	return MessageResponse{
		ID:        msg.ID.String(),
		Role:      string(msg.Role),
		Content:   msg.Content,
		Parts:     parts,
		CreatedAt: msg.CreatedAt,
	}
}
