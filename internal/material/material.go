// Package material runs the study material pipeline: uploading a PDF into
// object storage and the study library, and analysing a stored material into
// a summary, keywords and recommended resources.
package material

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/objectstore"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/store"
)

// Prompts used by [Pipeline.Process].
const (
	AnalysisSystemPrompt = "You are an educational AI that creates concise summaries and extracts key concepts from study materials."

	analysisPromptFormat = "Analyze this educational content and provide:\n" +
		"1. A crisp, exam-ready summary (max 200 words)\n" +
		"2. 5-10 important keywords/concepts\n\n" +
		"Content: %s\n\n" +
		`Return as JSON: {"summary": "...", "keywords": ["...", "..."]}`

	resourcesPromptFormat = "Generate 3 educational resource recommendations (YouTube videos or Wikipedia articles) for: %s. " +
		`Return as JSON array: [{"title": "...", "url": "...", "type": "youtube|wikipedia"}]`
)

// Analysis is the outcome of [Pipeline.Process].
type Analysis struct {
	Summary   string
	Keywords  []string
	Resources []store.Resource
}

// Upload describes one uploaded file.
type Upload struct {
	UserID      string
	FileName    string
	ContentType string
	Data        []byte
}

// Uploaded identifies the rows and object created for an upload.
type Uploaded struct {
	PDFID      string
	FileURL    string
	MaterialID string
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithClock overrides the time source used for object keys.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithTextExtractor overrides PDF text extraction. Defaults to [ExtractText].
func WithTextExtractor(fn func([]byte) (string, error)) Option {
	return func(p *Pipeline) { p.extract = fn }
}

// Pipeline processes and uploads study materials. It is safe for concurrent
// use.
type Pipeline struct {
	materials store.MaterialStore
	objects   objectstore.Store
	llm       llm.Provider
	now       func() time.Time
	extract   func([]byte) (string, error)
}

// New creates a Pipeline. objects may be nil, in which case uploads fail.
func New(materials store.MaterialStore, objects objectstore.Store, p llm.Provider, opts ...Option) (*Pipeline, error) {
	if materials == nil {
		return nil, errors.New("material: store must not be nil")
	}
	if p == nil {
		return nil, errors.New("material: llm provider must not be nil")
	}
	pl := &Pipeline{
		materials: materials,
		objects:   objects,
		llm:       p,
		now:       time.Now,
		extract:   ExtractText,
	}
	for _, o := range opts {
		o(pl)
	}
	return pl, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Process
// ─────────────────────────────────────────────────────────────────────────────

// Process analyses a stored material. The summary and the resource
// recommendations are generated concurrently; both must succeed before
// anything is written.
func (p *Pipeline) Process(ctx context.Context, userID, materialID string) (Analysis, error) {
	if userID == "" {
		return Analysis{}, apperr.AuthRequired()
	}
	m, err := p.materials.GetMaterial(ctx, materialID)
	if err != nil {
		return Analysis{}, fmt.Errorf("material: load: %w", err)
	}

	var (
		summary struct {
			Summary  string   `json:"summary"`
			Keywords []string `json:"keywords"`
		}
		resources []store.Resource
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.completeJSON(gctx, llm.CompletionRequest{
			SystemPrompt: AnalysisSystemPrompt,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(analysisPromptFormat, m.ExtractedText)}},
		}, &summary)
	})
	g.Go(func() error {
		return p.completeJSON(gctx, llm.CompletionRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(resourcesPromptFormat, m.Title)}},
		}, &resources)
	})
	if err := g.Wait(); err != nil {
		return Analysis{}, fmt.Errorf("material: analyse: %w", err)
	}
	if summary.Keywords == nil {
		summary.Keywords = []string{}
	}
	if resources == nil {
		resources = []store.Resource{}
	}

	if err := p.materials.UpdateMaterialAnalysis(ctx, m.ID, summary.Summary, summary.Keywords); err != nil {
		return Analysis{}, fmt.Errorf("material: save analysis: %w", err)
	}
	if err := p.materials.AddResources(ctx, m.ID, resources); err != nil {
		return Analysis{}, fmt.Errorf("material: save resources: %w", err)
	}

	observe.Logger(ctx).Info("material processed",
		"material_id", m.ID, "keywords", len(summary.Keywords), "resources", len(resources))
	return Analysis{Summary: summary.Summary, Keywords: summary.Keywords, Resources: resources}, nil
}

// completeJSON runs a single-shot completion and decodes the reply into v.
func (p *Pipeline) completeJSON(ctx context.Context, req llm.CompletionRequest, v any) error {
	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := llm.DecodeJSON(resp.Text(), v); err != nil {
		return apperr.GenerationParse(err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Upload
// ─────────────────────────────────────────────────────────────────────────────

// Upload stores a PDF, records it and creates a study material from its
// text. The file is validated and its text extracted before anything is
// written.
func (p *Pipeline) Upload(ctx context.Context, up Upload) (Uploaded, error) {
	if up.UserID == "" {
		return Uploaded{}, apperr.AuthRequired()
	}
	if len(up.Data) == 0 {
		return Uploaded{}, apperr.Transcoding("No file provided", nil)
	}
	if !IsPDF(up.Data) {
		return Uploaded{}, apperr.Transcoding("file is not a PDF", nil)
	}
	if p.objects == nil {
		return Uploaded{}, errors.New("material: object storage is not configured")
	}

	text, err := p.extract(up.Data)
	if err != nil {
		return Uploaded{}, apperr.Transcoding("could not read PDF", err)
	}

	name := path.Base(strings.ReplaceAll(up.FileName, `\`, "/"))
	if name == "." || name == "/" {
		name = "document.pdf"
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	key := ObjectKey(p.now(), name)
	url, err := p.objects.Put(ctx, key, contentType, up.Data)
	if err != nil {
		return Uploaded{}, apperr.Store("material: upload "+key, err)
	}

	rec, err := p.materials.CreatePDF(ctx, store.PDF{UserID: up.UserID, Name: name, URL: url})
	if err != nil {
		return Uploaded{}, fmt.Errorf("material: record pdf: %w", err)
	}
	m, err := p.materials.CreateMaterial(ctx, store.StudyMaterial{
		UserID:        up.UserID,
		Title:         strings.TrimSuffix(name, path.Ext(name)),
		ExtractedText: text,
		PDFID:         rec.ID,
	})
	if err != nil {
		return Uploaded{}, fmt.Errorf("material: create material: %w", err)
	}

	observe.Logger(ctx).Info("pdf uploaded",
		"pdf_id", rec.ID, "material_id", m.ID, "bytes", len(up.Data), "text_len", len(text))
	return Uploaded{PDFID: rec.ID, FileURL: url, MaterialID: m.ID}, nil
}

// ObjectKey names an upload "<unix-millis>_<name>".
func ObjectKey(t time.Time, name string) string {
	return fmt.Sprintf("%d_%s", t.UnixMilli(), name)
}
