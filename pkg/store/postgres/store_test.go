package postgres_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/store"
	"github.com/MrWong99/agora/pkg/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if AGORA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AGORA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGORA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS quiz_questions CASCADE",
		"DROP TABLE IF EXISTS quizzes CASCADE",
		"DROP TABLE IF EXISTS recommended_resources CASCADE",
		"DROP TABLE IF EXISTS study_materials CASCADE",
		"DROP TABLE IF EXISTS pdfs CASCADE",
		"DROP TABLE IF EXISTS chat_messages CASCADE",
		"DROP TABLE IF EXISTS tutor_chats CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), testDSN(t))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	var n int
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversations
// ─────────────────────────────────────────────────────────────────────────────

func TestEnsureConversation_ExistingIDUnchanged(t *testing.T) {
	st := newTestStore(t)
	id, err := st.EnsureConversation(context.Background(), "user-1", "chat-42", "ignored")
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if id != "chat-42" {
		t.Errorf("id = %q, want chat-42", id)
	}
	if n := countRows(t, "tutor_chats"); n != 0 {
		t.Errorf("expected no conversation rows, got %d", n)
	}
}

func TestEnsureConversation_TitleTruncated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed := strings.Repeat("ä", 60)
	id, err := st.EnsureConversation(ctx, "user-1", "", seed)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	var title string
	if err := pool.QueryRow(ctx, "SELECT title FROM tutor_chats WHERE id = $1", id).Scan(&title); err != nil {
		t.Fatalf("select title: %v", err)
	}
	if title != strings.Repeat("ä", 50) {
		t.Errorf("title has %d runes, want 50", len([]rune(title)))
	}
}

func TestAppendAndLoadHistory_PreservesOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.EnsureConversation(ctx, "user-1", "", "Explain Ohm's law")
	if err != nil {
		t.Fatal(err)
	}
	want := []struct{ role, content string }{
		{store.RoleUser, "Explain Ohm's law"},
		{store.RoleAssistant, "V = I * R."},
		{store.RoleUser, "Example?"},
		{store.RoleUser, "Please."},
		{store.RoleAssistant, "10 V across 5 ohm gives 2 A."},
	}
	for _, m := range want {
		if err := st.AppendMessage(ctx, id, m.role, m.content); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := st.LoadHistory(ctx, id)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].role || got[i].Content != want[i].content {
			t.Errorf("message %d = %s/%q, want %s/%q", i, got[i].Role, got[i].Content, want[i].role, want[i].content)
		}
		if i > 0 && got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Errorf("message %d created before message %d", i, i-1)
		}
	}
}

func TestLoadHistory_Empty(t *testing.T) {
	st := newTestStore(t)
	got, err := st.LoadHistory(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Materials
// ─────────────────────────────────────────────────────────────────────────────

func TestGetMaterial_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetMaterial(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", apperr.KindOf(err))
	}
}

func TestMaterialLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pdf, err := st.CreatePDF(ctx, store.PDF{UserID: "user-1", Name: "newton.pdf", URL: "https://cdn.example/newton.pdf"})
	if err != nil {
		t.Fatalf("CreatePDF: %v", err)
	}
	m, err := st.CreateMaterial(ctx, store.StudyMaterial{
		UserID:        "user-1",
		Title:         "Newton's Laws",
		ExtractedText: "F = m * a",
		PDFID:         pdf.ID,
	})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	if err := st.UpdateMaterialAnalysis(ctx, m.ID, "Forces and motion.", []string{"force", "mass"}); err != nil {
		t.Fatalf("UpdateMaterialAnalysis: %v", err)
	}
	if err := st.AddResources(ctx, m.ID, []store.Resource{
		{Title: "Newton's laws of motion", URL: "https://en.wikipedia.org/wiki/Newton%27s_laws_of_motion", Type: "wikipedia"},
	}); err != nil {
		t.Fatalf("AddResources: %v", err)
	}

	got, err := st.GetMaterial(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	if got.Summary != "Forces and motion." || len(got.Keywords) != 2 || got.PDFID != pdf.ID {
		t.Errorf("unexpected material: %+v", got)
	}
	if n := countRows(t, "recommended_resources"); n != 1 {
		t.Errorf("resources = %d, want 1", n)
	}
}

func TestUpdateMaterialAnalysis_NotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateMaterialAnalysis(context.Background(), "missing", "s", nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Quizzes
// ─────────────────────────────────────────────────────────────────────────────

func TestCreateQuiz_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m, err := st.CreateMaterial(ctx, store.StudyMaterial{UserID: "user-1", Title: "Newton's Laws"})
	if err != nil {
		t.Fatal(err)
	}
	questions := make([]store.QuizQuestion, 5)
	for i := range questions {
		questions[i] = store.QuizQuestion{
			Question:      "Q" + string(rune('1'+i)),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "B",
		}
	}
	quiz, saved, err := st.CreateQuiz(ctx, store.Quiz{
		UserID: "user-1", MaterialID: m.ID, Title: "Newton's Laws - Quiz", Difficulty: store.DifficultyMedium,
	}, questions)
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if quiz.ID == "" || len(saved) != 5 {
		t.Fatalf("unexpected result: %+v, %d questions", quiz, len(saved))
	}

	got, err := st.QuizQuestions(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("QuizQuestions: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d questions, want 5", len(got))
	}
	for i, q := range got {
		if q.Position != i+1 || q.Question != questions[i].Question || len(q.Options) != 4 {
			t.Errorf("question %d = %+v", i, q)
		}
	}
}

func TestCreateQuiz_RollsBackOnFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m, err := st.CreateMaterial(ctx, store.StudyMaterial{UserID: "user-1", Title: "Optics"})
	if err != nil {
		t.Fatal(err)
	}
	// A NULL options array violates the NOT NULL constraint on the second row.
	questions := []store.QuizQuestion{
		{Question: "ok", Options: []string{"A", "B", "C", "D"}, CorrectAnswer: "A"},
		{Question: "broken", Options: nil, CorrectAnswer: "A"},
	}
	_, _, err = st.CreateQuiz(ctx, store.Quiz{UserID: "user-1", MaterialID: m.ID, Title: "t", Difficulty: "easy"}, questions)
	if !apperr.Is(err, apperr.KindStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if n := countRows(t, "quizzes"); n != 0 {
		t.Errorf("quizzes = %d, want 0", n)
	}
	if n := countRows(t, "quiz_questions"); n != 0 {
		t.Errorf("quiz_questions = %d, want 0", n)
	}
}
