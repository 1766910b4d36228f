package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStep is one idempotent DDL statement. Steps run in order so later
// ALTERs can upgrade an index created by an older build.
type schemaStep struct {
	name string
	sql  string
}

// EnsureRAGSchema creates the brochure and chunk tables sized for the
// configured embedding dimension. A dimension change needs a manual drop.
func EnsureRAGSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	for _, step := range schemaSteps(dimension) {
		if _, err := pool.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("schema step %s: %w", step.name, err)
		}
	}
	return nil
}

func schemaStatements(dimension int) []string {
	steps := schemaSteps(dimension)
	out := make([]string, len(steps))
	for i, step := range steps {
		out[i] = step.sql
	}
	return out
}

func schemaSteps(dimension int) []schemaStep {
	return []schemaStep{
		{"pgvector extension", "CREATE EXTENSION IF NOT EXISTS vector"},
		{"brochure table", `CREATE TABLE IF NOT EXISTS rag_documents (
			id UUID PRIMARY KEY,
			source_path TEXT UNIQUE NOT NULL,
			title TEXT,
			sha256 TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
		{"chunk table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES rag_documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL CHECK (chunk_index >= 0),
			content TEXT NOT NULL,
			locality TEXT NOT NULL DEFAULT 'Unknown',
			property_type TEXT NOT NULL DEFAULT 'Unknown',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(document_id, chunk_index)
		)`, dimension)},
		{"chunk locality column", "ALTER TABLE rag_chunks ADD COLUMN IF NOT EXISTS locality TEXT NOT NULL DEFAULT 'Unknown'"},
		{"chunk property type column", "ALTER TABLE rag_chunks ADD COLUMN IF NOT EXISTS property_type TEXT NOT NULL DEFAULT 'Unknown'"},
		{"chunk metadata column", "ALTER TABLE rag_chunks ADD COLUMN IF NOT EXISTS metadata JSONB NOT NULL DEFAULT '{}'::jsonb"},
		{"chunk updated_at column", "ALTER TABLE rag_chunks ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()"},
		{"chunk document index", "CREATE INDEX IF NOT EXISTS idx_rag_chunks_document ON rag_chunks(document_id)"},
		{"chunk locality index", "CREATE INDEX IF NOT EXISTS idx_rag_chunks_locality ON rag_chunks(locality)"},
		{"chunk property type index", "CREATE INDEX IF NOT EXISTS idx_rag_chunks_property_type ON rag_chunks(property_type)"},
		{"chunk embedding index", "CREATE INDEX IF NOT EXISTS idx_rag_chunks_embedding_hnsw ON rag_chunks USING hnsw (embedding vector_cosine_ops)"},
	}
}
