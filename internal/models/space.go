package models

import (
	"strings"
	"time"
)

// KnowledgeSpace is a named knowledge base. VectorType selects the vector
// backend its chunks are stored in.
type KnowledgeSpace struct {
	Name        string    `json:"name"`
	VectorType  string    `json:"vector_type"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"gmt_created"`
}

// IsGraph reports whether the space was declared as a knowledge graph space.
func (s KnowledgeSpace) IsGraph() bool {
	vt := strings.ToLower(s.VectorType)
	return strings.Contains(vt, "graph") || strings.Contains(vt, "knowledge")
}

// DocStatus is the sync status of a knowledge document.
type DocStatus string

const (
	DocStatusTodo     DocStatus = "TODO"
	DocStatusRunning  DocStatus = "RUNNING"
	DocStatusFinished DocStatus = "FINISHED"
	DocStatusFailed   DocStatus = "FAILED"
)

// KnowledgeDocument links an uploaded file to a knowledge space.
type KnowledgeDocument struct {
	ID        string    `json:"id"`
	Name      string    `json:"doc_name"`
	Space     string    `json:"space"`
	Type      string    `json:"doc_type"`
	Status    DocStatus `json:"status"`
	ChunkSize int       `json:"chunk_size"`
	Content   string    `json:"content"`
	Result    string    `json:"result,omitempty"`
	LastSync  time.Time `json:"last_sync"`
	CreatedAt time.Time `json:"gmt_created"`
}
