// Package store defines the persistence contracts for tasks, templates,
// knowledge spaces and chunk metadata.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/kgforge/internal/models"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// TaskStore persists construction tasks and their uploaded files.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	// UpdateTask replaces the stored task; ErrNotFound if it does not exist.
	UpdateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// ListTasks returns one page, newest first, and the total match count.
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error)
	// DeleteTask removes the task and its file details.
	DeleteTask(ctx context.Context, id string) error
	// ListUnfinishedTasks returns pending and running tasks.
	ListUnfinishedTasks(ctx context.Context) ([]*models.Task, error)

	SaveFileDetail(ctx context.Context, fd *models.FileDetail) error
	ListFileDetails(ctx context.Context, taskID string) ([]models.FileDetail, error)
}

// TemplateStore persists prompt templates.
type TemplateStore interface {
	// CreateTemplate fails with ErrAlreadyExists on a duplicate name.
	CreateTemplate(ctx context.Context, t *models.PromptTemplate) error
	UpdateTemplate(ctx context.Context, t *models.PromptTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.PromptTemplate, error)
	// ListTemplates returns system templates plus those owned by userID.
	ListTemplates(ctx context.Context, userID string) ([]models.PromptTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	CountSystemTemplates(ctx context.Context) (int, error)
}

// SpaceStore persists knowledge spaces, their documents and chunk metadata.
type SpaceStore interface {
	CreateSpace(ctx context.Context, s *models.KnowledgeSpace) error
	GetSpace(ctx context.Context, name string) (*models.KnowledgeSpace, error)
	ListSpaces(ctx context.Context) ([]models.KnowledgeSpace, error)

	// SaveDocument inserts or replaces a document by ID.
	SaveDocument(ctx context.Context, d *models.KnowledgeDocument) error
	FindDocument(ctx context.Context, space, name string) (*models.KnowledgeDocument, error)
	ListDocuments(ctx context.Context, space string) ([]models.KnowledgeDocument, error)

	SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error
	ListChunks(ctx context.Context, space, docName string) ([]models.DocumentChunk, error)
}

// Store is the full persistence surface.
type Store interface {
	TaskStore
	TemplateStore
	SpaceStore
	Close(ctx context.Context) error
}
