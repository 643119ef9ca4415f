// Package quiz generates multiple-choice quizzes from a user's study
// material and persists them.
//
// The generated JSON is trusted only after validation. A quiz is stored only
// when it has exactly [QuestionCount] questions, each with exactly
// [OptionCount] options and a correct answer that is one of them. The quiz
// row and its questions are written in a single store transaction.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/store"
)

// Shape of a generated quiz.
const (
	QuestionCount = 5
	OptionCount   = 4
)

// SystemPrompt instructs the model to act as a quiz author.
const SystemPrompt = "You are an educational AI that generates high-quality quiz questions. " +
	"Generate exactly 5 multiple-choice questions with 4 options each."

// userPromptFormat is filled with difficulty, title and content.
const userPromptFormat = "Generate a %s difficulty quiz based on this content:\n\n" +
	"Title: %s\n\n" +
	"Content: %s\n\n" +
	"Return ONLY a JSON array of 5 questions in this exact format:\n" +
	`[{"question": "...", "options": ["A", "B", "C", "D"], "correct_answer": "A", "explanation": "..."}]`

// Request asks for a quiz on one material.
type Request struct {
	UserID     string
	MaterialID string
	// Difficulty is one of easy, medium or hard. Empty means the
	// orchestrator's default.
	Difficulty string
}

// Result is a stored quiz with its questions in order.
type Result struct {
	Quiz      store.Quiz
	Questions []store.QuizQuestion
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithDefaultDifficulty sets the difficulty used when a request names none.
// Defaults to medium.
func WithDefaultDifficulty(d string) Option {
	return func(o *Orchestrator) {
		if d != "" {
			o.defaultDifficulty = d
		}
	}
}

// WithMetrics records generation outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator generates quizzes. It is safe for concurrent use.
type Orchestrator struct {
	materials         store.MaterialStore
	quizzes           store.QuizStore
	llm               llm.Provider
	defaultDifficulty string
	metrics           *observe.Metrics
}

// New creates an Orchestrator.
func New(materials store.MaterialStore, quizzes store.QuizStore, p llm.Provider, opts ...Option) (*Orchestrator, error) {
	if materials == nil || quizzes == nil {
		return nil, errors.New("quiz: stores must not be nil")
	}
	if p == nil {
		return nil, errors.New("quiz: llm provider must not be nil")
	}
	o := &Orchestrator{
		materials:         materials,
		quizzes:           quizzes,
		llm:               p,
		defaultDifficulty: store.DifficultyMedium,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !ValidDifficulty(o.defaultDifficulty) {
		return nil, fmt.Errorf("quiz: invalid default difficulty %q", o.defaultDifficulty)
	}
	return o, nil
}

// ValidDifficulty reports whether d is easy, medium or hard.
func ValidDifficulty(d string) bool {
	switch d {
	case store.DifficultyEasy, store.DifficultyMedium, store.DifficultyHard:
		return true
	}
	return false
}

// Generate creates and stores a quiz for req.MaterialID. Returned errors
// carry an apperr kind.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		return Result{}, apperr.AuthRequired()
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = o.defaultDifficulty
	}
	if !ValidDifficulty(difficulty) {
		return Result{}, apperr.GenerationValidation(fmt.Sprintf("invalid difficulty %q", difficulty))
	}

	res, err := o.generate(ctx, req, difficulty)
	o.record(ctx, difficulty, err)
	return res, err
}

func (o *Orchestrator) generate(ctx context.Context, req Request, difficulty string) (Result, error) {
	log := observe.Logger(ctx).With("user_id", req.UserID, "material_id", req.MaterialID)

	material, err := o.materials.GetMaterial(ctx, req.MaterialID)
	if err != nil {
		return Result{}, fmt.Errorf("quiz: load material: %w", err)
	}

	resp, err := o.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: UserPrompt(material, difficulty)}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("quiz: completion: %w", err)
	}

	questions, err := ParseQuestions(resp.Text())
	if err != nil {
		log.Warn("quiz generation rejected", "err", err)
		return Result{}, err
	}

	quiz, saved, err := o.quizzes.CreateQuiz(ctx, store.Quiz{
		UserID:     req.UserID,
		MaterialID: material.ID,
		Title:      material.Title + " - Quiz",
		Difficulty: difficulty,
	}, questions)
	if err != nil {
		return Result{}, fmt.Errorf("quiz: save: %w", err)
	}

	log.Info("quiz generated", "quiz_id", quiz.ID, "difficulty", difficulty)
	return Result{Quiz: quiz, Questions: saved}, nil
}

func (o *Orchestrator) record(ctx context.Context, difficulty string, err error) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = apperr.KindOf(err).String()
	}
	o.metrics.RecordQuizGeneration(ctx, difficulty, status)
}

// UserPrompt builds the generation prompt for m. The summary stands in for
// the content when no text was extracted.
func UserPrompt(m store.StudyMaterial, difficulty string) string {
	content := m.ExtractedText
	if content == "" {
		content = m.Summary
	}
	return fmt.Sprintf(userPromptFormat, difficulty, m.Title, content)
}

// generatedQuestion is the JSON shape the model is asked to return.
type generatedQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// ParseQuestions decodes and validates a generated quiz. Malformed JSON is a
// generation parse error; a well-formed quiz of the wrong shape is a
// generation validation error. A surrounding markdown code fence is removed
// before decoding; nothing else is repaired.
func ParseQuestions(content string) ([]store.QuizQuestion, error) {
	var generated []generatedQuestion
	if err := llm.DecodeJSON(content, &generated); err != nil {
		return nil, apperr.GenerationParse(err)
	}

	if len(generated) != QuestionCount {
		return nil, apperr.GenerationValidation(
			fmt.Sprintf("expected %d questions, got %d", QuestionCount, len(generated)))
	}
	out := make([]store.QuizQuestion, len(generated))
	for i, g := range generated {
		if len(g.Options) != OptionCount {
			return nil, apperr.GenerationValidation(
				fmt.Sprintf("question %d: expected %d options, got %d", i+1, OptionCount, len(g.Options)))
		}
		if !slices.Contains(g.Options, g.CorrectAnswer) {
			return nil, apperr.GenerationValidation(
				fmt.Sprintf("question %d: correct answer %q is not one of the options", i+1, g.CorrectAnswer))
		}
		out[i] = store.QuizQuestion{
			Position:      i + 1,
			Question:      g.Question,
			Options:       g.Options,
			CorrectAnswer: g.CorrectAnswer,
			Explanation:   g.Explanation,
		}
	}
	return out, nil
}
