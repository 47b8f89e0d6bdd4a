// Package models defines the data structures shared by the kgforge pipeline,
// registry and persistence layers.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a construction task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no transition may leave s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows s -> next.
// pending only moves to running; running only moves to a terminal state.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next.Terminal()
	}
	return false
}

// ExtractionMode selects how triples are produced from the uploaded files.
type ExtractionMode string

const (
	// ModeText runs LLM triplet extraction over the document text.
	ModeText ExtractionMode = "text"
	// ModeMapping applies a column mapping to spreadsheet rows.
	ModeMapping ExtractionMode = "mapping"
	// ModeAuto picks mapping when a mapping and a spreadsheet are present.
	ModeAuto ExtractionMode = "auto"
)

// ParseExtractionMode normalizes user input. "llm" is accepted as an alias of
// "text", "none" of "mapping", and the empty string means auto.
func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "text", "llm":
		return ModeText, nil
	case "mapping", "none":
		return ModeMapping, nil
	}
	return "", fmt.Errorf("unknown extraction mode %q", s)
}

// FileInfo is the per-file snapshot carried on a task and in progress events.
type FileInfo struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// Task identifies one knowledge graph construction job.
type Task struct {
	ID             string         `json:"task_id"`
	UserID         string         `json:"user_id"`
	GraphSpace     string         `json:"graph_space_name"`
	Files          []FileInfo     `json:"file_names"`
	TotalFiles     int            `json:"total_files"`
	Mode           ExtractionMode `json:"excel_mode"`
	CustomPrompt   string         `json:"custom_prompt,omitempty"`
	ColumnMapping  *ColumnMapping `json:"column_mapping,omitempty"`
	WorkflowConfig map[string]any `json:"workflow_config,omitempty"`

	Status         TaskStatus `json:"status"`
	Progress       float64    `json:"progress"`
	CurrentStep    string     `json:"current_step,omitempty"`
	EntitiesCount  int        `json:"entities_count"`
	RelationsCount int        `json:"relations_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"gmt_created"`
	UpdatedAt   time.Time  `json:"gmt_modified"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FileSnapshot returns the per-file view of t. Once a task is completed every
// file reports completed at full progress.
func (t *Task) FileSnapshot() []FileInfo {
	files := make([]FileInfo, len(t.Files))
	copy(files, t.Files)
	if t.Status == TaskStatusCompleted {
		for i := range files {
			files[i].Status = string(TaskStatusCompleted)
			files[i].Progress = 1.0
		}
	}
	return files
}

// Clone returns a deep copy safe to hand out of the registry.
func (t *Task) Clone() *Task {
	c := *t
	c.Files = append([]FileInfo(nil), t.Files...)
	if t.ColumnMapping != nil {
		m := t.ColumnMapping.Clone()
		c.ColumnMapping = &m
	}
	if t.WorkflowConfig != nil {
		c.WorkflowConfig = make(map[string]any, len(t.WorkflowConfig))
		for k, v := range t.WorkflowConfig {
			c.WorkflowConfig[k] = v
		}
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// TaskFilter selects a page of tasks.
type TaskFilter struct {
	UserID string
	Status TaskStatus
	Page   int // 1-based
	Limit  int
}

// Normalize applies paging defaults.
func (f TaskFilter) Normalize() TaskFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Offset returns the row offset of the page.
func (f TaskFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// FileDetail is the persisted record of one uploaded file.
type FileDetail struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"task_id"`
	FileName         string    `json:"file_name"`
	FilePath         string    `json:"file_path"`
	FileSize         int64     `json:"file_size"`
	FileType         string    `json:"file_type"`
	Status           string    `json:"status"`
	Progress         float64   `json:"progress"`
	ChunksCount      int       `json:"chunks_count"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ErrorDetail      string    `json:"error_detail,omitempty"`
	CreatedAt        time.Time `json:"gmt_created"`
}

// FileType returns the lower-case extension of name without the dot, or
// "unknown" when there is none.
func FileType(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "unknown"
	}
	return strings.ToLower(ext)
}
