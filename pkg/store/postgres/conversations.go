package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/agora/pkg/store"
)

// EnsureConversation implements [store.ConversationStore].
func (s *Store) EnsureConversation(ctx context.Context, userID, existingID, seedTitle string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}

	const q = `
		INSERT INTO tutor_chats (id, user_id, title)
		VALUES ($1, $2, $3)`

	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, q, id, userID, store.TitleFrom(seedTitle)); err != nil {
		return "", storeErr("create conversation", err)
	}
	return id, nil
}

// AppendMessage implements [store.ConversationStore].
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	const q = `
		INSERT INTO chat_messages (id, chat_id, role, content)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, uuid.NewString(), conversationID, role, content); err != nil {
		return storeErr("append message", err)
	}
	return nil
}

// LoadHistory implements [store.ConversationStore]. Rows are ordered by
// created_at with the insertion sequence as tie-breaker.
func (s *Store) LoadHistory(ctx context.Context, conversationID string) ([]store.Message, error) {
	const q = `
		SELECT id, chat_id, role, content, created_at
		FROM   chat_messages
		WHERE  chat_id = $1
		ORDER  BY created_at, seq`

	rows, err := s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, storeErr("load history", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Message, error) {
		var m store.Message
		err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, storeErr("scan history", err)
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return msgs, nil
}
