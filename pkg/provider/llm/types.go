package llm

// Conversation roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in a completion request.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
// Counts may be zero when the backend does not report them (most streaming
// gateways omit usage).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
