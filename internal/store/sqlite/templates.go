package sqlite

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/kgforge/internal/models"
)

func (s *Store) CreateTemplate(ctx context.Context, t *models.PromptTemplate) error {
	data, err := marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prompt_templates (id, name, is_system, user_id, created_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.IsSystem, t.UserID, t.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("create template: %w", wrapError(err))
	}
	return nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t *models.PromptTemplate) error {
	data, err := marshal(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompt_templates SET name = ?, data = ? WHERE id = ?`, t.Name, data, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", wrapError(err))
	}
	return checkAffected(res)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	if err := s.getOne(ctx, &t, `SELECT data FROM prompt_templates WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context, userID string) ([]models.PromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM prompt_templates WHERE is_system = 1 OR user_id = ?
		 ORDER BY is_system DESC, created_at, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return scanAll[models.PromptTemplate](rows)
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompt_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return checkAffected(res)
}

func (s *Store) CountSystemTemplates(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM prompt_templates WHERE is_system = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count system templates: %w", err)
	}
	return n, nil
}
