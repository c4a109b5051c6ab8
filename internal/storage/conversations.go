package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnsureConversation resolves a conversation for the user. A zero
// conversationID, or one that does not belong to the user, yields a fresh
// conversation.
func (s *Store) EnsureConversation(ctx context.Context, externalID string, conversationID int64, defaultTitle string) (Conversation, error) {
	user, err := s.GetOrCreateUser(ctx, externalID, "")
	if err != nil {
		return Conversation{}, err
	}

	if conversationID != 0 {
		conv, err := s.getOwnedConversation(ctx, user.ID, conversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Conversation{}, err
		}
	}

	if defaultTitle == "" {
		defaultTitle = "New conversation"
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		user.ID, defaultTitle, now, now,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Conversation{}, fmt.Errorf("getting conversation id: %w", err)
	}

	return Conversation{
		ID:        id,
		UserID:    user.ID,
		Title:     defaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) getOwnedConversation(ctx context.Context, userID, conversationID int64) (Conversation, error) {
	var (
		conv  Conversation
		title sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID,
	).Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("getting conversation: %w", err)
	}

	conv.Title = title.String
	return conv, nil
}

// ListConversations returns the user's conversations, most recently active
// first.
func (s *Store) ListConversations(ctx context.Context, externalID string, limit int) ([]Conversation, error) {
	user, err := s.GetOrCreateUser(ctx, externalID, "")
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id DESC LIMIT ?`,
		user.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		var (
			conv  Conversation
			title sql.NullString
		)
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conv.Title = title.String
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

// AddMessage appends a message to a conversation the user owns and bumps the
// conversation's activity timestamp.
func (s *Store) AddMessage(ctx context.Context, externalID string, conversationID int64, role, content, imageURL string, metadata json.RawMessage) (Message, error) {
	user, err := s.GetOrCreateUser(ctx, externalID, "")
	if err != nil {
		return Message{}, err
	}

	conv, err := s.getOwnedConversation(ctx, user.ID, conversationID)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, user_id, role, content, image_url, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, user.ID, role, content, nullIfEmpty(imageURL), rawOrNil(metadata), now,
	)
	if err != nil {
		return Message{}, fmt.Errorf("adding message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("getting message id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", now, conv.ID,
	); err != nil {
		return Message{}, fmt.Errorf("touching conversation: %w", err)
	}

	return Message{
		ID:             id,
		ConversationID: conv.ID,
		UserID:         user.ID,
		Role:           role,
		Content:        content,
		ImageURL:       imageURL,
		Metadata:       metadata,
		CreatedAt:      now,
	}, nil
}

// ListMessages returns the last limit messages of a conversation the user
// owns, in chronological order. An unowned or unknown conversation yields an
// empty slice.
func (s *Store) ListMessages(ctx context.Context, externalID string, conversationID int64, limit int) ([]Message, error) {
	user, err := s.GetOrCreateUser(ctx, externalID, "")
	if err != nil {
		return nil, err
	}

	if _, err := s.getOwnedConversation(ctx, user.ID, conversationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Message{}, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, role, content, image_url, metadata, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			msg      Message
			imageURL sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.UserID, &msg.Role,
			&msg.Content, &imageURL, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.ImageURL = imageURL.String
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// AddToolEvent records a tool invocation against a conversation.
func (s *Store) AddToolEvent(ctx context.Context, conversationID int64, toolName string, arguments json.RawMessage, resultPreview string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_events (conversation_id, tool_name, arguments, result_preview, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, toolName, rawOrNil(arguments), resultPreview, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("adding tool event: %w", err)
	}
	return nil
}

// ListToolEvents returns the tool events of a conversation in invocation
// order.
func (s *Store) ListToolEvents(ctx context.Context, conversationID int64, limit int) ([]ToolEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, tool_name, arguments, result_preview, created_at
		 FROM tool_events WHERE conversation_id = ? ORDER BY id ASC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tool events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]ToolEvent, 0)
	for rows.Next() {
		var (
			event ToolEvent
			args  sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.ConversationID, &event.ToolName,
			&args, &event.ResultPreview, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tool event: %w", err)
		}
		if args.Valid {
			event.Arguments = json.RawMessage(args.String)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool events: %w", err)
	}

	return events, nil
}

// AddMealLog records a meal for the user. A zero conversationID stores NULL.
func (s *Store) AddMealLog(ctx context.Context, externalID string, conversationID int64, mealText, imageURL string, analysis json.RawMessage) error {
	user, err := s.GetOrCreateUser(ctx, externalID, "")
	if err != nil {
		return err
	}

	var convID any
	if conversationID != 0 {
		convID = conversationID
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO meal_logs (user_id, conversation_id, meal_text, image_url, analysis, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, convID, nullIfEmpty(mealText), nullIfEmpty(imageURL), rawOrNil(analysis), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("adding meal log: %w", err)
	}
	return nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
