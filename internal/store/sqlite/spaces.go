package sqlite

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/kgforge/internal/models"
)

func (s *Store) CreateSpace(ctx context.Context, sp *models.KnowledgeSpace) error {
	data, err := marshal(sp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_spaces (name, created_at, data) VALUES (?, ?, ?)`,
		sp.Name, sp.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("create space: %w", wrapError(err))
	}
	return nil
}

func (s *Store) GetSpace(ctx context.Context, name string) (*models.KnowledgeSpace, error) {
	var sp models.KnowledgeSpace
	if err := s.getOne(ctx, &sp, `SELECT data FROM knowledge_spaces WHERE name = ?`, name); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Store) ListSpaces(ctx context.Context) ([]models.KnowledgeSpace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM knowledge_spaces ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	return scanAll[models.KnowledgeSpace](rows)
}

func (s *Store) SaveDocument(ctx context.Context, d *models.KnowledgeDocument) error {
	data, err := marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_documents (id, space, name, created_at, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET space = excluded.space, name = excluded.name, data = excluded.data`,
		d.ID, d.Space, d.Name, d.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("save document: %w", wrapError(err))
	}
	return nil
}

func (s *Store) FindDocument(ctx context.Context, space, name string) (*models.KnowledgeDocument, error) {
	var d models.KnowledgeDocument
	if err := s.getOne(ctx, &d,
		`SELECT data FROM knowledge_documents WHERE space = ? AND name = ?`, space, name); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, space string) ([]models.KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM knowledge_documents WHERE space = ? ORDER BY created_at, name`, space)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return scanAll[models.KnowledgeDocument](rows)
}

// SaveChunks writes all chunks in one transaction.
func (s *Store) SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO document_chunks (id, space, doc_name, chunk_index, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		data, err := marshal(c)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Space, c.DocName, c.ChunkIndex, data); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListChunks(ctx context.Context, space, docName string) ([]models.DocumentChunk, error) {
	query := `SELECT data FROM document_chunks WHERE space = ?`
	args := []any{space}
	if docName != "" {
		query += ` AND doc_name = ?`
		args = append(args, docName)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY doc_name, chunk_index`, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return scanAll[models.DocumentChunk](rows)
}
