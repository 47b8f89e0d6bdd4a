package models

import "time"

// Metadata keys set by the loader, the chunker and the embedding stage.
const (
	MetaSource     = "source"
	MetaDocName    = "doc_name"
	MetaFileType   = "file_type"
	MetaChunkIndex = "chunk_index"
	MetaTitle      = "title"
	MetaSheet      = "sheet"
	MetaDocumentID = "document_id"
	MetaTaskID     = "task_id"
	MetaEmbedModel = "embedding_model"
)

// Document is one parsed unit of an uploaded file.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the source path recorded by the loader.
func (d Document) Source() string {
	s, _ := d.Metadata[MetaSource].(string)
	return s
}

// Name returns the document name recorded by the loader, falling back to the
// source path.
func (d Document) Name() string {
	if s, ok := d.Metadata[MetaDocName].(string); ok && s != "" {
		return s
	}
	return d.Source()
}

// Chunk is a bounded span of document text, optionally carrying its vector.
type Chunk struct {
	ID        string         `json:"id,omitempty"`
	Content   string         `json:"content"`
	Source    string         `json:"source"`
	DocName   string         `json:"doc_name"`
	Index     int            `json:"chunk_index"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
}

// DocumentChunk is the persisted metadata of a stored chunk.
type DocumentChunk struct {
	ID         string         `json:"id"`
	Space      string         `json:"space"`
	DocName    string         `json:"doc_name"`
	DocumentID string         `json:"document_id,omitempty"`
	Content    string         `json:"content"`
	Source     string         `json:"source"`
	ChunkIndex int            `json:"chunk_index"`
	VectorID   string         `json:"vector_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"gmt_created"`
}
