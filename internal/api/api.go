// Package api exposes Agora's orchestrators over HTTP.
//
// Every route accepts POST with a JSON body (multipart for /upload-pdf) and
// answers with JSON. Failures are rendered as {"error": message}; the status
// code comes from [apperr.HTTPStatus] so upstream rate-limit (429) and quota
// (402) failures reach the client unchanged while everything else is a 500.
// The error kind is also sent in the X-Error-Kind header.
//
// The authenticated user is read from the request context, where
// [auth.Verifier.Middleware] placed it.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/agora/internal/chat"
	"github.com/MrWong99/agora/internal/material"
	"github.com/MrWong99/agora/internal/quiz"
	"github.com/MrWong99/agora/internal/voice"
)

// DefaultMaxBodyBytes bounds request bodies. Voice recordings arrive base64
// encoded inside JSON, so the limit is generous.
const DefaultMaxBodyBytes int64 = 32 << 20

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (chat.Result, error)
}

// QuizGenerator produces and stores a quiz for a material.
type QuizGenerator interface {
	Generate(ctx context.Context, req quiz.Request) (quiz.Result, error)
}

// Conversant answers a recorded question with text and speech.
type Conversant interface {
	Converse(ctx context.Context, req voice.Request) (voice.Result, error)
}

// Materials analyses and ingests study materials.
type Materials interface {
	Process(ctx context.Context, userID, materialID string) (material.Analysis, error)
	Upload(ctx context.Context, up material.Upload) (material.Uploaded, error)
}

// Compile-time interface assertions.
var (
	_ Chatter       = (*chat.Orchestrator)(nil)
	_ QuizGenerator = (*quiz.Orchestrator)(nil)
	_ Conversant    = (*voice.Orchestrator)(nil)
	_ Materials     = (*material.Pipeline)(nil)
)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes]. Non-positive values are
// ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server holds the orchestrators behind the HTTP routes. It is stateless
// apart from its dependencies and safe for concurrent use.
type Server struct {
	chat      Chatter
	quiz      QuizGenerator
	voice     Conversant
	materials Materials
	maxBody   int64
}

// New creates a [Server]. All orchestrators are required.
func New(c Chatter, q QuizGenerator, v Conversant, m Materials, opts ...Option) (*Server, error) {
	switch {
	case c == nil:
		return nil, errors.New("api: chat orchestrator must not be nil")
	case q == nil:
		return nil, errors.New("api: quiz orchestrator must not be nil")
	case v == nil:
		return nil, errors.New("api: voice orchestrator must not be nil")
	case m == nil:
		return nil, errors.New("api: material pipeline must not be nil")
	}
	s := &Server{
		chat:      c,
		quiz:      q,
		voice:     v,
		materials: m,
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /generate-quiz", s.handleGenerateQuiz)
	mux.HandleFunc("POST /voice-chat", s.handleVoiceChat)
	mux.HandleFunc("POST /process-pdf", s.handleProcessPDF)
	mux.HandleFunc("POST /upload-pdf", s.handleUploadPDF)
}

// Handler returns the API routes wrapped in [CORS].
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return CORS(mux)
}
