package repository

import (
	"context"
	"encoding/json"
	"errors"

	"saleschat/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ChatRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewChatRepository(db *pgxpool.Pool, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	query := squirrel.Insert("chats").
		Columns("id", "user_id", "title", "created_at", "updated_at").
		Values(chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// GetChat returns nil without error when the chat does not exist.
func (r *ChatRepository) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	query := squirrel.Select("id", "user_id", "title", "created_at", "updated_at").
		From("chats").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var chat models.Chat
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &chat, nil
}

func (r *ChatRepository) ListChatsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Chat, error) {
	query := squirrel.Select("id", "user_id", "title", "created_at", "updated_at").
		From("chats").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, &chat)
	}

	return chats, rows.Err()
}

func (r *ChatRepository) DeleteChat(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Delete("chats").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ChatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return err
	}

	query := squirrel.Insert("messages").
		Columns("id", "chat_id", "role", "content", "parts", "created_at").
		Values(msg.ID, msg.ChatID, msg.Role, msg.Content, parts, msg.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	query := squirrel.Select("id", "chat_id", "role", "content", "parts", "created_at").
		From("messages").
		Where(squirrel.Eq{"chat_id": chatID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var parts []byte
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &parts, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if len(parts) > 0 {
			if err := json.Unmarshal(parts, &msg.Parts); err != nil {
				return nil, err
			}
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// UpsertVote records an up/down vote; re-voting a message overwrites the
// previous value.
func (r *ChatRepository) UpsertVote(ctx context.Context, vote *models.Vote) error {
	query := squirrel.Insert("votes").
		Columns("chat_id", "message_id", "is_upvoted").
		Values(vote.ChatID, vote.MessageID, vote.IsUpvoted).
		Suffix("ON CONFLICT (chat_id, message_id) DO UPDATE SET is_upvoted = EXCLUDED.is_upvoted").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}
