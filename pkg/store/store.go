// Package store defines Agora's persistent entities and the contracts the
// orchestrators use to read and write them.
//
// Three stores are defined, one per aggregate:
//
//   - [ConversationStore]: chat threads and their messages.
//   - [MaterialStore]: uploaded study materials, their analysis, recommended
//     resources and the PDF records behind them.
//   - [QuizStore]: generated quizzes and their questions.
//
// The postgres sub-package implements all three on a single connection pool;
// the mock sub-package provides an in-memory double for tests.
//
// Implementations report persistence failures as apperr.KindStore errors and
// missing rows as apperr.KindNotFound errors that also match [ErrNotFound].
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/agora/pkg/apperr"
)

// ErrNotFound is matched (via errors.Is) by every not-found error returned
// from a store implementation.
var ErrNotFound = errors.New("store: not found")

// ConversationStore persists chat conversations.
type ConversationStore interface {
	// EnsureConversation returns existingID unchanged when it is non-empty.
	// Otherwise it creates a new conversation for userID titled with the
	// first 50 runes of seedTitle and returns its id. Ownership of an
	// existing id is not checked.
	EnsureConversation(ctx context.Context, userID, existingID, seedTitle string) (string, error)

	// AppendMessage adds one message to the conversation. Consecutive
	// messages with the same role are stored as separate rows.
	AppendMessage(ctx context.Context, conversationID, role, content string) error

	// LoadHistory returns every message of the conversation in ascending
	// creation order. Messages appended by a single writer come back in the
	// order they were appended.
	LoadHistory(ctx context.Context, conversationID string) ([]Message, error)
}

// MaterialStore persists study materials and their derived data.
type MaterialStore interface {
	// GetMaterial returns the material with the given id or a not-found error.
	GetMaterial(ctx context.Context, id string) (StudyMaterial, error)

	// CreateMaterial inserts m and returns it with ID and CreatedAt populated.
	CreateMaterial(ctx context.Context, m StudyMaterial) (StudyMaterial, error)

	// UpdateMaterialAnalysis stores the generated summary and keywords.
	UpdateMaterialAnalysis(ctx context.Context, id, summary string, keywords []string) error

	// AddResources attaches recommended resources to a material.
	AddResources(ctx context.Context, materialID string, resources []Resource) error

	// CreatePDF records an uploaded file and returns it with ID populated.
	CreatePDF(ctx context.Context, p PDF) (PDF, error)
}

// QuizStore persists generated quizzes.
type QuizStore interface {
	// CreateQuiz inserts the quiz and all of its questions atomically. Either
	// every row is written or none is. The returned values carry the
	// generated ids; question positions are assigned in slice order starting
	// at 1.
	CreateQuiz(ctx context.Context, quiz Quiz, questions []QuizQuestion) (Quiz, []QuizQuestion, error)

	// QuizQuestions returns the questions of a quiz ordered by position.
	QuizQuestions(ctx context.Context, quizID string) ([]QuizQuestion, error)
}

// Store bundles every contract. Both the postgres and the mock
// implementation satisfy it.
type Store interface {
	ConversationStore
	MaterialStore
	QuizStore
}

// NotFoundError returns an apperr.KindNotFound error describing what that
// also matches [ErrNotFound].
func NotFoundError(what string) error {
	return &apperr.Error{Kind: apperr.KindNotFound, Message: what + " not found", Err: ErrNotFound}
}
