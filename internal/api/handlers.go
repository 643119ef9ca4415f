package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrWong99/agora/internal/auth"
	"github.com/MrWong99/agora/internal/chat"
	"github.com/MrWong99/agora/internal/material"
	"github.com/MrWong99/agora/internal/quiz"
	"github.com/MrWong99/agora/internal/voice"
	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/store"
)

// multipartMemory is the part of an upload held in memory before
// mime/multipart spills to temporary files.
const multipartMemory = 8 << 20

// ─── /chat ───────────────────────────────────────────────────────────────────

type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

type chatResponse struct {
	ChatID   string `json:"chatId"`
	Response string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.chat.Chat(r.Context(), chat.Request{
		UserID:         auth.UserFrom(r.Context()),
		ConversationID: req.ChatID,
		Message:        req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{ChatID: res.ConversationID, Response: res.Reply})
}

// ─── /generate-quiz ──────────────────────────────────────────────────────────

type quizRequest struct {
	MaterialID string `json:"materialId"`
	Difficulty string `json:"difficulty"`
}

type quizResponse struct {
	Quiz      store.Quiz           `json:"quiz"`
	Questions []store.QuizQuestion `json:"questions"`
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.quiz.Generate(r.Context(), quiz.Request{
		UserID:     auth.UserFrom(r.Context()),
		MaterialID: req.MaterialID,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: res.Quiz, Questions: res.Questions})
}

// ─── /voice-chat ─────────────────────────────────────────────────────────────

type voiceRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType"`
	Voice    string `json:"voice"`
}

type voiceResponse struct {
	UserText   string `json:"user_text"`
	ReplyText  string `json:"reply_text"`
	ReplyAudio string `json:"reply_audio"`
}

func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.voice.Converse(r.Context(), voice.Request{
		AudioBase64: req.Audio,
		MimeType:    req.MimeType,
		Voice:       req.Voice,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceResponse{
		UserText:   res.UserText,
		ReplyText:  res.ReplyText,
		ReplyAudio: res.ReplyAudioBase64,
	})
}

// ─── /process-pdf ────────────────────────────────────────────────────────────

type processRequest struct {
	MaterialID string `json:"materialId"`
}

type processResponse struct {
	Success   bool             `json:"success"`
	Summary   string           `json:"summary"`
	Keywords  []string         `json:"keywords"`
	Resources []store.Resource `json:"resources"`
}

func (s *Server) handleProcessPDF(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.materials.Process(r.Context(), auth.UserFrom(r.Context()), req.MaterialID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Success:   true,
		Summary:   a.Summary,
		Keywords:  a.Keywords,
		Resources: a.Resources,
	})
}

// ─── /upload-pdf ─────────────────────────────────────────────────────────────

type uploadResponse struct {
	PDFID      string `json:"pdf_id"`
	FileURL    string `json:"file_url"`
	MaterialID string `json:"material_id"`
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, fmt.Errorf("api: invalid multipart body: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		writeError(w, r, apperr.Transcoding("No file provided", nil))
		return
	}
	if err != nil {
		writeError(w, r, fmt.Errorf("api: read upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("api: read upload: %w", err))
		return
	}

	up, err := s.materials.Upload(r.Context(), material.Upload{
		UserID:      auth.UserFrom(r.Context()),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		PDFID:      up.PDFID,
		FileURL:    up.FileURL,
		MaterialID: up.MaterialID,
	})
}
