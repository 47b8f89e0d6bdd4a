package db

import "fmt"

// tables in deletion order.
var tables = []string{"chunk_vector", "document_chunk", "knowledge_document", "knowledge_space", "prompt_template", "file_detail", "task"}

// schemaSQL defines the record tables. Records carry their JSON document in
// data next to the fields used for filtering and ordering.
func schemaSQL(dimension int) string {
	return fmt.Sprintf(`
    DEFINE TABLE IF NOT EXISTS task SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS task_user ON task FIELDS user_id, created_at;
    DEFINE INDEX IF NOT EXISTS task_status ON task FIELDS status;

    DEFINE TABLE IF NOT EXISTS file_detail SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS file_detail_task ON file_detail FIELDS task_id;

    DEFINE TABLE IF NOT EXISTS prompt_template SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS prompt_template_name ON prompt_template FIELDS name UNIQUE;

    DEFINE TABLE IF NOT EXISTS knowledge_space SCHEMALESS;

    DEFINE TABLE IF NOT EXISTS knowledge_document SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS knowledge_document_name ON knowledge_document FIELDS space, name UNIQUE;

    DEFINE TABLE IF NOT EXISTS document_chunk SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS document_chunk_doc ON document_chunk FIELDS space, doc_name, chunk_index;

    -- ==========================================================================
    -- CHUNK VECTORS (one collection per graph space)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk_vector SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS collection ON chunk_vector TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON chunk_vector TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON chunk_vector TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS embedding ON chunk_vector TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON chunk_vector TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS chunk_vector_collection ON chunk_vector FIELDS collection;
    DEFINE INDEX IF NOT EXISTS chunk_vector_embedding ON chunk_vector FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`, dimension)
}
