package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Conversations
// ─────────────────────────────────────────────────────────────────────────────

// chat_messages.seq breaks created_at ties so rows written by one caller
// within the same clock tick keep their insertion order.
const ddlConversations = `
CREATE TABLE IF NOT EXISTS tutor_chats (
    id          TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    title       TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tutor_chats_user_id
    ON tutor_chats (user_id);

CREATE TABLE IF NOT EXISTS chat_messages (
    id          TEXT         PRIMARY KEY,
    seq         BIGSERIAL    NOT NULL,
    chat_id     TEXT         NOT NULL REFERENCES tutor_chats (id) ON DELETE CASCADE,
    role        TEXT         NOT NULL CHECK (role IN ('user', 'assistant')),
    content     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_order
    ON chat_messages (chat_id, created_at, seq);
`

// ─────────────────────────────────────────────────────────────────────────────
// Materials
// ─────────────────────────────────────────────────────────────────────────────

const ddlMaterials = `
CREATE TABLE IF NOT EXISTS pdfs (
    id          TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    pdf_name    TEXT         NOT NULL,
    pdf_url     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS study_materials (
    id              TEXT         PRIMARY KEY,
    user_id         TEXT         NOT NULL,
    title           TEXT         NOT NULL,
    extracted_text  TEXT         NOT NULL DEFAULT '',
    summary         TEXT         NOT NULL DEFAULT '',
    keywords        TEXT[]       NOT NULL DEFAULT '{}',
    pdf_id          TEXT         REFERENCES pdfs (id) ON DELETE SET NULL,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_study_materials_user_id
    ON study_materials (user_id);

CREATE TABLE IF NOT EXISTS recommended_resources (
    id           TEXT  PRIMARY KEY,
    material_id  TEXT  NOT NULL REFERENCES study_materials (id) ON DELETE CASCADE,
    title        TEXT  NOT NULL,
    url          TEXT  NOT NULL,
    type         TEXT  NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recommended_resources_material_id
    ON recommended_resources (material_id);
`

// ─────────────────────────────────────────────────────────────────────────────
// Quizzes
// ─────────────────────────────────────────────────────────────────────────────

const ddlQuizzes = `
CREATE TABLE IF NOT EXISTS quizzes (
    id           TEXT         PRIMARY KEY,
    user_id      TEXT         NOT NULL,
    material_id  TEXT         NOT NULL REFERENCES study_materials (id) ON DELETE CASCADE,
    title        TEXT         NOT NULL,
    difficulty   TEXT         NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quiz_questions (
    id              TEXT     PRIMARY KEY,
    quiz_id         TEXT     NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
    position        INTEGER  NOT NULL,
    question        TEXT     NOT NULL,
    options         TEXT[]   NOT NULL,
    correct_answer  TEXT     NOT NULL,
    explanation     TEXT     NOT NULL DEFAULT '',
    UNIQUE (quiz_id, position)
);
`

// Migrate creates all tables and indexes Agora needs. It is idempotent and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlConversations,
		ddlMaterials,
		ddlQuizzes,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
