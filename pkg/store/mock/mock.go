// Package mock provides an in-memory implementation of every store contract
// for use in tests.
//
// Store keeps all rows in maps guarded by a single mutex, records the name of
// every method call and lets tests inject a failure per method. CreateQuiz is
// all-or-nothing just like the database implementation.
//
// Example:
//
//	st := mock.New()
//	st.PutMaterial(store.StudyMaterial{ID: "m1", Title: "Newton's Laws"})
//	st.AppendErr = errors.New("disk full")
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/store"
)

// Store is an in-memory implementation of [store.Store].
// Set the Err fields to make the corresponding method fail; injected errors
// are returned as apperr.KindStore errors unless they already carry a kind.
type Store struct {
	mu sync.Mutex

	// --- Fault injection ---

	EnsureErr         error
	AppendErr         error
	LoadErr           error
	GetMaterialErr    error
	CreateMaterialErr error
	UpdateErr         error
	ResourcesErr      error
	PDFErr            error
	CreateQuizErr     error
	QuizQuestionsErr  error

	// --- Call records ---

	// Calls lists the method names invoked, in order.
	Calls []string

	conversations map[string]store.Conversation
	messages      map[string][]store.Message
	materials     map[string]store.StudyMaterial
	resources     map[string][]store.Resource
	pdfs          map[string]store.PDF
	quizzes       map[string]store.Quiz
	questions     map[string][]store.QuizQuestion
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		conversations: make(map[string]store.Conversation),
		messages:      make(map[string][]store.Message),
		materials:     make(map[string]store.StudyMaterial),
		resources:     make(map[string][]store.Resource),
		pdfs:          make(map[string]store.PDF),
		quizzes:       make(map[string]store.Quiz),
		questions:     make(map[string][]store.QuizQuestion),
	}
}

// record appends name to Calls. Caller must hold s.mu.
func (s *Store) record(name string) {
	s.Calls = append(s.Calls, name)
}

func injected(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Store("mock store: "+op, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// ConversationStore
// ─────────────────────────────────────────────────────────────────────────────

// EnsureConversation implements [store.ConversationStore].
func (s *Store) EnsureConversation(_ context.Context, userID, existingID, seedTitle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("EnsureConversation")
	if s.EnsureErr != nil {
		return "", injected("ensure conversation", s.EnsureErr)
	}
	if existingID != "" {
		return existingID, nil
	}
	id := uuid.NewString()
	s.conversations[id] = store.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     store.TitleFrom(seedTitle),
		CreatedAt: time.Now(),
	}
	return id, nil
}

// AppendMessage implements [store.ConversationStore].
func (s *Store) AppendMessage(_ context.Context, conversationID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AppendMessage")
	if s.AppendErr != nil {
		return injected("append message", s.AppendErr)
	}
	s.messages[conversationID] = append(s.messages[conversationID], store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	})
	return nil
}

// LoadHistory implements [store.ConversationStore].
func (s *Store) LoadHistory(_ context.Context, conversationID string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LoadHistory")
	if s.LoadErr != nil {
		return nil, injected("load history", s.LoadErr)
	}
	return append([]store.Message{}, s.messages[conversationID]...), nil
}

// Conversation returns the stored conversation with the given id.
func (s *Store) Conversation(id string) (store.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	return c, ok
}

// ConversationCount returns the number of conversations created.
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Messages returns a copy of the messages stored for conversationID.
func (s *Store) Messages(conversationID string) []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages[conversationID])
}

// ─────────────────────────────────────────────────────────────────────────────
// MaterialStore
// ─────────────────────────────────────────────────────────────────────────────

// PutMaterial seeds a material without recording a call.
func (s *Store) PutMaterial(m store.StudyMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.materials[m.ID] = m
}

// Material returns the stored material with the given id.
func (s *Store) Material(id string) (store.StudyMaterial, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	return m, ok
}

// Resources returns the resources stored for materialID.
func (s *Store) Resources(materialID string) []store.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.resources[materialID])
}

// PDFs returns every stored PDF record.
func (s *Store) PDFs() []store.PDF {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.PDF, 0, len(s.pdfs))
	for _, p := range s.pdfs {
		out = append(out, p)
	}
	return out
}

// GetMaterial implements [store.MaterialStore].
func (s *Store) GetMaterial(_ context.Context, id string) (store.StudyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetMaterial")
	if s.GetMaterialErr != nil {
		return store.StudyMaterial{}, injected("get material", s.GetMaterialErr)
	}
	m, ok := s.materials[id]
	if !ok {
		return store.StudyMaterial{}, store.NotFoundError("Material")
	}
	return m, nil
}

// CreateMaterial implements [store.MaterialStore].
func (s *Store) CreateMaterial(_ context.Context, m store.StudyMaterial) (store.StudyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateMaterial")
	if s.CreateMaterialErr != nil {
		return store.StudyMaterial{}, injected("create material", s.CreateMaterialErr)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Keywords == nil {
		m.Keywords = []string{}
	}
	m.CreatedAt = time.Now()
	s.materials[m.ID] = m
	return m, nil
}

// UpdateMaterialAnalysis implements [store.MaterialStore].
func (s *Store) UpdateMaterialAnalysis(_ context.Context, id, summary string, keywords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateMaterialAnalysis")
	if s.UpdateErr != nil {
		return injected("update material analysis", s.UpdateErr)
	}
	m, ok := s.materials[id]
	if !ok {
		return store.NotFoundError("Material")
	}
	m.Summary = summary
	m.Keywords = slices.Clone(keywords)
	s.materials[id] = m
	return nil
}

// AddResources implements [store.MaterialStore].
func (s *Store) AddResources(_ context.Context, materialID string, resources []store.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddResources")
	if s.ResourcesErr != nil {
		return injected("add resources", s.ResourcesErr)
	}
	for _, r := range resources {
		r.ID = uuid.NewString()
		r.MaterialID = materialID
		s.resources[materialID] = append(s.resources[materialID], r)
	}
	return nil
}

// CreatePDF implements [store.MaterialStore].
func (s *Store) CreatePDF(_ context.Context, p store.PDF) (store.PDF, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreatePDF")
	if s.PDFErr != nil {
		return store.PDF{}, injected("create pdf", s.PDFErr)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	s.pdfs[p.ID] = p
	return p, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// QuizStore
// ─────────────────────────────────────────────────────────────────────────────

// CreateQuiz implements [store.QuizStore]. Nothing is stored when
// CreateQuizErr is set.
func (s *Store) CreateQuiz(_ context.Context, quiz store.Quiz, questions []store.QuizQuestion) (store.Quiz, []store.QuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateQuiz")
	if s.CreateQuizErr != nil {
		return store.Quiz{}, nil, injected("create quiz", s.CreateQuizErr)
	}
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	quiz.CreatedAt = time.Now()

	out := make([]store.QuizQuestion, len(questions))
	for i, q := range questions {
		q.ID = uuid.NewString()
		q.QuizID = quiz.ID
		q.Position = i + 1
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	s.quizzes[quiz.ID] = quiz
	s.questions[quiz.ID] = slices.Clone(out)
	return quiz, out, nil
}

// QuizQuestions implements [store.QuizStore].
func (s *Store) QuizQuestions(_ context.Context, quizID string) ([]store.QuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("QuizQuestions")
	if s.QuizQuestionsErr != nil {
		return nil, injected("quiz questions", s.QuizQuestionsErr)
	}
	return append([]store.QuizQuestion{}, s.questions[quizID]...), nil
}

// QuizCount returns the number of stored quizzes.
func (s *Store) QuizCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quizzes)
}

// QuestionCount returns the number of stored questions across all quizzes.
func (s *Store) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, qs := range s.questions {
		n += len(qs)
	}
	return n
}

// Reset clears all rows, injected errors and call records.
func (s *Store) Reset() {
	fresh := New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = fresh.conversations
	s.messages = fresh.messages
	s.materials = fresh.materials
	s.resources = fresh.resources
	s.pdfs = fresh.pdfs
	s.quizzes = fresh.quizzes
	s.questions = fresh.questions
	s.EnsureErr, s.AppendErr, s.LoadErr = nil, nil, nil
	s.GetMaterialErr, s.CreateMaterialErr, s.UpdateErr = nil, nil, nil
	s.ResourcesErr, s.PDFErr, s.CreateQuizErr, s.QuizQuestionsErr = nil, nil, nil, nil
	s.Calls = nil
}

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)
