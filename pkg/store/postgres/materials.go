package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/agora/pkg/store"
)

// GetMaterial implements [store.MaterialStore].
func (s *Store) GetMaterial(ctx context.Context, id string) (store.StudyMaterial, error) {
	const q = `
		SELECT id, user_id, title, extracted_text, summary, keywords,
		       COALESCE(pdf_id, ''), created_at
		FROM   study_materials
		WHERE  id = $1`

	var m store.StudyMaterial
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&m.ID,
		&m.UserID,
		&m.Title,
		&m.ExtractedText,
		&m.Summary,
		&m.Keywords,
		&m.PDFID,
		&m.CreatedAt,
	)
	if err != nil {
		return store.StudyMaterial{}, notFoundOr("get material", "Material", err)
	}
	return m, nil
}

// CreateMaterial implements [store.MaterialStore].
func (s *Store) CreateMaterial(ctx context.Context, m store.StudyMaterial) (store.StudyMaterial, error) {
	const q = `
		INSERT INTO study_materials (id, user_id, title, extracted_text, summary, keywords, pdf_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING created_at`

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Keywords == nil {
		m.Keywords = []string{}
	}
	err := s.pool.QueryRow(ctx, q,
		m.ID, m.UserID, m.Title, m.ExtractedText, m.Summary, m.Keywords, m.PDFID,
	).Scan(&m.CreatedAt)
	if err != nil {
		return store.StudyMaterial{}, storeErr("create material", err)
	}
	return m, nil
}

// UpdateMaterialAnalysis implements [store.MaterialStore].
func (s *Store) UpdateMaterialAnalysis(ctx context.Context, id, summary string, keywords []string) error {
	const q = `
		UPDATE study_materials
		SET    summary = $2, keywords = $3
		WHERE  id = $1`

	if keywords == nil {
		keywords = []string{}
	}
	tag, err := s.pool.Exec(ctx, q, id, summary, keywords)
	if err != nil {
		return storeErr("update material analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundError("Material")
	}
	return nil
}

// AddResources implements [store.MaterialStore]. All rows are sent in one
// batch.
func (s *Store) AddResources(ctx context.Context, materialID string, resources []store.Resource) error {
	if len(resources) == 0 {
		return nil
	}

	const q = `
		INSERT INTO recommended_resources (id, material_id, title, url, type)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, r := range resources {
		batch.Queue(q, uuid.NewString(), materialID, r.Title, r.URL, r.Type)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return storeErr("add resources", err)
	}
	return nil
}

// CreatePDF implements [store.MaterialStore].
func (s *Store) CreatePDF(ctx context.Context, p store.PDF) (store.PDF, error) {
	const q = `
		INSERT INTO pdfs (id, user_id, pdf_name, pdf_url)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := s.pool.QueryRow(ctx, q, p.ID, p.UserID, p.Name, p.URL).Scan(&p.CreatedAt); err != nil {
		return store.PDF{}, storeErr("create pdf", err)
	}
	return p, nil
}
