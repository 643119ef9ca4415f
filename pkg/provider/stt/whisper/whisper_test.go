package whisper_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/stt/whisper"
)

// upload captures what the fake server received.
type upload struct {
	path     string
	fileName string
	fileType string
	data     []byte
	model    string
	language string
	auth     string
}

// newMockServer creates a test server that records the multipart upload and
// responds with a JSON body containing responseText.
func newMockServer(t *testing.T, responseText string, got *upload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)

		*got = upload{
			path:     r.URL.Path,
			fileName: hdr.Filename,
			fileType: hdr.Header.Get("Content-Type"),
			data:     data,
			model:    r.FormValue("model"),
			language: r.FormValue("language"),
			auth:     r.Header.Get("Authorization"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_UploadsRecording(t *testing.T) {
	t.Parallel()

	var got upload
	srv := newMockServer(t, " hello ", &got)
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"), whisper.WithLanguage("en"))
	if err != nil {
		t.Fatal(err)
	}

	audio := []byte{0x1A, 0x45, 0xDF, 0xA3}
	text, err := p.Transcribe(context.Background(), audio, "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want %q", text, "hello")
	}
	if got.path != whisper.DefaultEndpoint {
		t.Errorf("path = %q", got.path)
	}
	if got.fileName != "audio.webm" {
		t.Errorf("file name = %q", got.fileName)
	}
	if got.fileType != "audio/webm;codecs=opus" {
		t.Errorf("file content type = %q", got.fileType)
	}
	if !bytes.Equal(got.data, audio) {
		t.Errorf("uploaded data = %v", got.data)
	}
	if got.model != "base.en" || got.language != "en" {
		t.Errorf("hint fields = %q / %q", got.model, got.language)
	}
	if got.auth != "" {
		t.Errorf("unexpected Authorization header %q", got.auth)
	}
}

func TestTranscribe_OpenAICompatibleEndpoint(t *testing.T) {
	t.Parallel()

	var got upload
	srv := newMockServer(t, "hi", &got)
	p, err := whisper.New(srv.URL,
		whisper.WithEndpoint("/v1/audio/transcriptions"),
		whisper.WithAPIKey("secret"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Transcribe(context.Background(), []byte{1}, ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", got.path)
	}
	if got.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.fileType != "audio/webm" {
		t.Errorf("default mime type not applied: %q", got.fileType)
	}
}

func TestTranscribe_EmptyTextIsNotAnError(t *testing.T) {
	t.Parallel()

	var got upload
	srv := newMockServer(t, "", &got)
	p, _ := whisper.New(srv.URL)
	text, err := p.Transcribe(context.Background(), []byte{1, 2}, "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), []byte{1}, "audio/webm")
	if !apperr.Is(err, apperr.KindTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if apperr.HTTPStatus(err) != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d", apperr.HTTPStatus(err))
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), []byte{1}, "audio/webm")
	if !apperr.Is(err, apperr.KindTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
}
