package store

import "time"

// Message roles persisted in chat_messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Quiz difficulties accepted by the quiz generator.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// MaxTitleRunes is the length a seed message is cut to when it becomes the
// title of a new conversation.
const MaxTitleRunes = 50

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a [Conversation].
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chat_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// StudyMaterial is a document uploaded by a user together with its extracted
// text and the analysis produced for it.
type StudyMaterial struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	ExtractedText string    `json:"extracted_text"`
	Summary       string    `json:"summary"`
	Keywords      []string  `json:"keywords"`
	PDFID         string    `json:"pdf_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Quiz is a generated set of questions for a [StudyMaterial].
type Quiz struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	MaterialID string    `json:"material_id"`
	Title      string    `json:"title"`
	Difficulty string    `json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuizQuestion is a single multiple-choice question of a [Quiz].
// CorrectAnswer is always one of Options.
type QuizQuestion struct {
	ID            string   `json:"id,omitempty"`
	QuizID        string   `json:"quiz_id"`
	Position      int      `json:"position"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// Resource is an external learning resource recommended for a material.
type Resource struct {
	ID         string `json:"id,omitempty"`
	MaterialID string `json:"material_id,omitempty"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Type       string `json:"type"`
}

// PDF records an uploaded file in object storage.
type PDF struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"pdf_name"`
	URL       string    `json:"pdf_url"`
	CreatedAt time.Time `json:"created_at"`
}

// TitleFrom returns the first [MaxTitleRunes] runes of seed.
func TitleFrom(seed string) string {
	r := []rune(seed)
	if len(r) <= MaxTitleRunes {
		return seed
	}
	return string(r[:MaxTitleRunes])
}
