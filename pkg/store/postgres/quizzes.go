package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/agora/pkg/store"
)

// CreateQuiz implements [store.QuizStore]. The quiz row and every question
// row are written in one transaction.
func (s *Store) CreateQuiz(ctx context.Context, quiz store.Quiz, questions []store.QuizQuestion) (store.Quiz, []store.QuizQuestion, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.Quiz{}, nil, storeErr("create quiz: begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const qQuiz = `
		INSERT INTO quizzes (id, user_id, material_id, title, difficulty)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	err = tx.QueryRow(ctx, qQuiz,
		quiz.ID, quiz.UserID, quiz.MaterialID, quiz.Title, quiz.Difficulty,
	).Scan(&quiz.CreatedAt)
	if err != nil {
		return store.Quiz{}, nil, storeErr("create quiz", err)
	}

	const qQuestion = `
		INSERT INTO quiz_questions
		    (id, quiz_id, position, question, options, correct_answer, explanation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	out := make([]store.QuizQuestion, len(questions))
	for i, q := range questions {
		q.ID = uuid.NewString()
		q.QuizID = quiz.ID
		q.Position = i + 1
		if _, err := tx.Exec(ctx, qQuestion,
			q.ID, q.QuizID, q.Position, q.Question, q.Options, q.CorrectAnswer, q.Explanation,
		); err != nil {
			return store.Quiz{}, nil, storeErr(fmt.Sprintf("create quiz: question %d", i), err)
		}
		out[i] = q
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Quiz{}, nil, storeErr("create quiz: commit", err)
	}
	return quiz, out, nil
}

// QuizQuestions implements [store.QuizStore].
func (s *Store) QuizQuestions(ctx context.Context, quizID string) ([]store.QuizQuestion, error) {
	const q = `
		SELECT id, quiz_id, position, question, options, correct_answer, explanation
		FROM   quiz_questions
		WHERE  quiz_id = $1
		ORDER  BY position`

	rows, err := s.pool.Query(ctx, q, quizID)
	if err != nil {
		return nil, storeErr("quiz questions", err)
	}
	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.QuizQuestion, error) {
		var qq store.QuizQuestion
		err := row.Scan(&qq.ID, &qq.QuizID, &qq.Position, &qq.Question, &qq.Options, &qq.CorrectAnswer, &qq.Explanation)
		return qq, err
	})
	if err != nil {
		return nil, storeErr("scan quiz questions", err)
	}
	if qs == nil {
		qs = []store.QuizQuestion{}
	}
	return qs, nil
}
