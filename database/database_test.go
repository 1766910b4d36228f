package database

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/config"
)

func TestEnsureRAGSchemaRejectsInvalidDimension(t *testing.T) {
	err := EnsureRAGSchema(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestSchemaUsesCosineIndexAndDimension(t *testing.T) {
	stmts := strings.Join(schemaStatements(768), "\n")
	assert.Contains(t, stmts, "VECTOR(768)")
	assert.Contains(t, stmts, "vector_cosine_ops")
	assert.Contains(t, stmts, "locality TEXT")
	assert.Contains(t, stmts, "metadata JSONB")
	assert.Contains(t, stmts, "idx_rag_chunks_property_type")
}

var insertColumns = regexp.MustCompile(`(?s)INSERT INTO (rag_\w+) \(([^)]*)\)`)

// The stores live in another package; their INSERT column lists are read
// from source so a column added there without a schema step fails here.
func TestSchemaHasEveryInsertedColumn(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("..", "retrieval", "postgres_store.go"))
	require.NoError(t, err)

	tables := tableColumns(schemaStatements(768))
	matches := insertColumns.FindAllStringSubmatch(string(src), -1)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		table := m[1]
		columns, ok := tables[table]
		require.True(t, ok, "no DDL for table %s", table)
		for _, col := range strings.Split(m[2], ",") {
			col = strings.TrimSpace(col)
			assert.Contains(t, columns, col, "INSERT INTO %s writes %q but the schema has no such column", table, col)
		}
	}
}

var (
	createTable = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*)\)`)
	addColumn   = regexp.MustCompile(`ALTER TABLE (\w+) ADD COLUMN IF NOT EXISTS (\w+)`)
)

func tableColumns(stmts []string) map[string][]string {
	tables := make(map[string][]string)
	for _, stmt := range stmts {
		if m := createTable.FindStringSubmatch(stmt); m != nil {
			for _, line := range strings.Split(m[2], "\n") {
				fields := strings.Fields(strings.TrimSpace(line))
				if len(fields) == 0 || strings.HasPrefix(fields[0], "UNIQUE") {
					continue
				}
				tables[m[1]] = append(tables[m[1]], fields[0])
			}
		}
		if m := addColumn.FindStringSubmatch(stmt); m != nil {
			tables[m[1]] = append(tables[m[1]], m[2])
		}
	}
	return tables
}

func TestDatabaseConnectivity(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pgPool, err := NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	defer pgPool.Close()
	require.NoError(t, pgPool.Ping(ctx))
	require.NoError(t, EnsureRAGSchema(ctx, pgPool, cfg.Embeddings.Dimension))

	driver, err := NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, driver.Close(ctx))
	}()

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() {
		assert.NoError(t, session.Close(ctx))
	}()

	result, err := session.Run(ctx, "RETURN 1 AS ok", nil)
	require.NoError(t, err)
	require.True(t, result.Next(ctx), "neo4j query returned no records")

	value, found := result.Record().Get("ok")
	require.True(t, found)
	assert.Equal(t, int64(1), value)
	require.NoError(t, result.Err())
}
