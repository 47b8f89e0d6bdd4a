package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/store"
)

var (
	// ErrTemplateNotFound is returned for unknown template ids.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrSystemTemplate is returned when modifying a built-in template.
	ErrSystemTemplate = errors.New("system templates cannot be modified")
	// ErrPermissionDenied is returned when a user touches another user's template.
	ErrPermissionDenied = errors.New("permission denied")
)

// TemplateService manages prompt templates. The built-in templates are
// seeded on first use.
type TemplateService struct {
	store store.TemplateStore

	mu     sync.Mutex
	seeded bool
}

// NewTemplateService creates a template service.
func NewTemplateService(st store.TemplateStore) *TemplateService {
	return &TemplateService{store: st}
}

// ensureSeeded inserts the system templates unless some already exist.
// A failed attempt is retried on the next call.
func (s *TemplateService) ensureSeeded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return nil
	}

	n, err := s.store.CountSystemTemplates(ctx)
	if err != nil {
		return fmt.Errorf("count system templates: %w", err)
	}
	if n == 0 {
		now := time.Now().UTC()
		for i, in := range models.DefaultTemplates() {
			t := newTemplate(in, "", now.Add(time.Duration(i)*time.Millisecond))
			t.IsSystem = true
			if err := s.store.CreateTemplate(ctx, t); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("seed template %q: %w", in.Name, err)
			}
		}
		slog.Info("seeded system templates", "count", len(models.DefaultTemplates()))
	}
	s.seeded = true
	return nil
}

func newTemplate(in models.TemplateInput, userID string, now time.Time) *models.PromptTemplate {
	vars := in.Variables
	if vars == nil {
		vars = []models.TemplateVariable{}
	}
	return &models.PromptTemplate{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		PromptContent: in.PromptContent,
		Variables:     vars,
		UserID:        userID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// List returns the system templates plus those owned by userID.
func (s *TemplateService) List(ctx context.Context, userID string) ([]models.PromptTemplate, error) {
	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}
	return s.store.ListTemplates(ctx, userID)
}

// Get returns one template.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.PromptTemplate, error) {
	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return t, nil
}

// Create adds a user template. Names are unique across all templates.
func (s *TemplateService) Create(ctx context.Context, userID string, in models.TemplateInput) (*models.PromptTemplate, error) {
	if err := validateTemplate(in.Name, in.PromptContent, in.Variables); err != nil {
		return nil, err
	}
	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}
	if userID == "" {
		userID = DefaultUserID
	}

	t := newTemplate(in, userID, time.Now().UTC())
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	slog.Info("template created", "template_id", t.ID, "name", t.Name, "user_id", userID)
	return t, nil
}

// Update applies the set fields of upd to a template owned by userID.
func (s *TemplateService) Update(ctx context.Context, userID, id string, upd models.TemplateUpdate) (*models.PromptTemplate, error) {
	t, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		t.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		t.Description = upd.Description
	}
	if upd.PromptContent != nil {
		t.PromptContent = *upd.PromptContent
	}
	if upd.Variables != nil {
		t.Variables = *upd.Variables
	}
	if err := validateTemplate(t.Name, t.PromptContent, t.Variables); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a template owned by userID.
func (s *TemplateService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	slog.Info("template deleted", "template_id", id, "user_id", userID)
	return nil
}

func (s *TemplateService) owned(ctx context.Context, userID, id string) (*models.PromptTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsSystem {
		return nil, ErrSystemTemplate
	}
	if userID == "" {
		userID = DefaultUserID
	}
	if t.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return t, nil
}

func validateTemplate(name, content string, vars []models.TemplateVariable) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: template name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: prompt content is required", ErrInvalidRequest)
	}
	for _, v := range vars {
		if v.Name == "" {
			return fmt.Errorf("%w: variable name is required", ErrInvalidRequest)
		}
		switch v.Type {
		case models.VariableText, "":
		case models.VariableSelect:
			if len(v.Options) == 0 {
				return fmt.Errorf("%w: select variable %q needs options", ErrInvalidRequest, v.Name)
			}
		default:
			return fmt.Errorf("%w: unknown variable type %q", ErrInvalidRequest, v.Type)
		}
	}
	return nil
}
