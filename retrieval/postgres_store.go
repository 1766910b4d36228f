package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var filterColumns = map[string]string{
	FieldLocality:     "rc.locality",
	FieldPropertyType: "rc.property_type",
	FieldSource:       "rd.source_path",
}

// PostgresStore keeps chunks in pgvector and searches by cosine distance.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Upsert replaces the chunks of doc.Source when its hash changed.
func (s *PostgresStore) Upsert(ctx context.Context, doc Document) (result UpsertResult, err error) {
	if s.pool == nil {
		return UpsertResult{}, fmt.Errorf("postgres pool is nil")
	}
	if err := validateDocument(doc); err != nil {
		return UpsertResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	docID, changed, err := upsertDocument(ctx, tx, doc.Source, doc.Title, doc.SHA)
	if err != nil {
		return UpsertResult{}, err
	}

	inserted := 0
	if changed {
		if _, err = tx.Exec(ctx, "DELETE FROM rag_chunks WHERE document_id = $1", docID); err != nil {
			return UpsertResult{}, fmt.Errorf("clear existing chunks: %w", err)
		}

		for i, chunk := range doc.Chunks {
			chunkID, parseErr := uuid.Parse(chunk.ID)
			if parseErr != nil {
				chunkID = uuid.New()
			}
			metadata := chunk.Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
			if _, err = tx.Exec(ctx, `
				INSERT INTO rag_chunks (id, document_id, chunk_index, content, locality, property_type, metadata, embedding, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			`, chunkID, docID, chunk.Index, chunk.Text, chunk.Locality, chunk.PropertyType, metadata, pgvector.NewVector(doc.Embeddings[i])); err != nil {
				return UpsertResult{}, fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
			}
			inserted++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("commit transaction: %w", err)
	}

	return UpsertResult{DocumentID: docID.String(), Inserted: inserted, Changed: changed}, nil
}

func (s *PostgresStore) Search(ctx context.Context, embedding []float32, limit int, filter Filter) ([]Hit, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	where, args, err := filterClause(filter, 3)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// The HNSW candidate list must cover the filtered limit or rows go missing.
	efSearch := limit * 4
	if efSearch < 40 {
		efSearch = 40
	}
	if efSearch > 1000 {
		efSearch = 1000
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", efSearch)); err != nil {
		return nil, fmt.Errorf("set hnsw ef_search: %w", err)
	}

	query := `
        SELECT
            rc.id,
            rc.document_id,
            rd.title,
            rd.source_path,
            rc.chunk_index,
            rc.content,
            rc.locality,
            rc.property_type,
            rc.metadata,
            (rc.embedding <=> $1::vector) AS distance
        FROM rag_chunks rc
        JOIN rag_documents rd ON rd.id = rc.document_id` + where + `
        ORDER BY rc.embedding <=> $1::vector
        LIMIT $2
    `
	params := append([]any{pgvector.NewVector(embedding), limit}, args...)

	rows, err := conn.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0)
	for rows.Next() {
		var (
			hit        Hit
			chunkID    uuid.UUID
			documentID uuid.UUID
			title      *string
			metadata   map[string]string
		)
		if scanErr := rows.Scan(&chunkID, &documentID, &title, &hit.Chunk.Source, &hit.Chunk.Index, &hit.Chunk.Text,
			&hit.Chunk.Locality, &hit.Chunk.PropertyType, &metadata, &hit.Distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		hit.Chunk.ID = chunkID.String()
		hit.Chunk.DocumentID = documentID.String()
		if title != nil {
			hit.Chunk.Title = *title
		}
		hit.Chunk.Metadata = metadata
		hits = append(hits, hit)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return hits, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE rag_chunks, rag_documents"); err != nil {
		return fmt.Errorf("truncate postgres tables: %w", err)
	}
	return nil
}

// filterClause renders equality predicates with placeholders starting at first.
func filterClause(filter Filter, first int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conditions := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, field := range fields {
		column, ok := filterColumns[field]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q", field)
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, first+i))
		args = append(args, filter[field])
	}
	return "\n        WHERE " + strings.Join(conditions, " AND "), args, nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, path, title, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM rag_documents WHERE source_path = $1", path).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			_, execErr := tx.Exec(ctx, `
				INSERT INTO rag_documents (id, source_path, title, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, $4, NOW(), NOW())
			`, newID, path, title, sha)
			if execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE rag_documents
		SET title = $2,
		    sha256 = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, title, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}

var _ VectorStore = (*PostgresStore)(nil)
