package knowledge

import (
	"context"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Neo4jGraph struct {
	driver neo4j.DriverWithContext
	logger *log.Logger
}

func NewNeo4jGraph(driver neo4j.DriverWithContext, logger *log.Logger) *Neo4jGraph {
	if logger == nil {
		logger = log.Default()
	}
	return &Neo4jGraph{driver: driver, logger: logger}
}

func (g *Neo4jGraph) SyncDocument(ctx context.Context, doc Document) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	prices := doc.PricesLakh
	if prices == nil {
		prices = []float64{}
	}
	configurations := doc.Configurations
	if configurations == nil {
		configurations = []string{}
	}
	params := map[string]any{
		"id":             doc.ID,
		"source":         doc.Source,
		"title":          doc.Title,
		"sha":            doc.SHA,
		"locality":       doc.Locality,
		"property_type":  doc.PropertyType,
		"configurations": configurations,
		"prices":         prices,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {source: $source})
			SET d.id = $id,
			    d.title = $title,
			    d.sha256 = $sha,
			    d.locality = $locality,
			    d.property_type = $property_type,
			    d.configurations = $configurations,
			    d.prices_lakh = $prices,
			    d.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {source: $source})-[r:IN_LOCALITY|OF_TYPE]->()
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("remove stale relations: %w", err)
		}
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {source: $source})
			MERGE (l:Locality {name: $locality})
			MERGE (d)-[:IN_LOCALITY]->(l)
			MERGE (t:PropertyType {name: $property_type})
			MERGE (d)-[:OF_TYPE]->(t)
		`, params); err != nil {
			return nil, fmt.Errorf("upsert locality and type relations: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {source: $source})-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE c
		`, params); err != nil {
			return nil, fmt.Errorf("clear existing chunk nodes: %w", err)
		}

		for _, chunk := range doc.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {source: $source})
				MERGE (c:Chunk {id: $chunk_id})
				SET c.index = $chunk_index,
				    c.text = $chunk_text
				MERGE (d)-[:HAS_CHUNK {order: $chunk_index}]->(c)
			`, map[string]any{
				"source":      doc.Source,
				"chunk_id":    chunk.ID,
				"chunk_index": chunk.Index,
				"chunk_text":  chunk.Text,
			}); err != nil {
				return nil, fmt.Errorf("upsert chunk node: %w", err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	if _, cleanupErr := session.Run(ctx, `
		MATCH (n)
		WHERE (n:Locality OR n:PropertyType) AND NOT (n)<--(:Document)
		DELETE n
	`, nil); cleanupErr != nil {
		g.logger.Printf("graph cleanup failed: %v", cleanupErr)
	}
	return nil
}

func (g *Neo4jGraph) FindProperties(ctx context.Context, q PropertyQuery) ([]PropertySummary, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	params := map[string]any{
		"locality":      q.Locality,
		"property_type": q.PropertyType,
		"bedrooms":      q.Bedrooms,
		"min":           nil,
		"max":           nil,
		"limit":         q.limit(),
	}
	if q.MinLakh != nil {
		params["min"] = *q.MinLakh
	}
	if q.MaxLakh != nil {
		params["max"] = *q.MaxLakh
	}

	result, err := session.Run(ctx, `
		MATCH (d:Document)
		WHERE ($locality = '' OR toLower(d.locality) = toLower($locality))
		  AND ($property_type = '' OR toLower(d.property_type) = toLower($property_type))
		  AND ($bedrooms = '' OR any(c IN coalesce(d.configurations, []) WHERE toLower(c) = toLower($bedrooms)))
		  AND (($min IS NULL AND $max IS NULL) OR any(p IN coalesce(d.prices_lakh, [])
		       WHERE ($min IS NULL OR p >= $min) AND ($max IS NULL OR p <= $max)))
		OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
		WITH d, count(DISTINCT c) AS chunkCount
		RETURN d.source AS source,
		       d.title AS title,
		       d.locality AS locality,
		       d.property_type AS propertyType,
		       d.configurations AS configurations,
		       d.prices_lakh AS prices,
		       chunkCount
		ORDER BY locality, source
		LIMIT $limit
	`, params)
	if err != nil {
		return nil, fmt.Errorf("run neo4j property query: %w", err)
	}

	summaries := make([]PropertySummary, 0)
	for result.Next(ctx) {
		record := result.Record()
		source, _ := record.Get("source")
		title, _ := record.Get("title")
		locality, _ := record.Get("locality")
		propertyType, _ := record.Get("propertyType")
		configurations, _ := record.Get("configurations")
		prices, _ := record.Get("prices")
		count, _ := record.Get("chunkCount")

		sourceValue, ok := source.(string)
		if !ok {
			continue
		}
		chunkCount, _ := toInt(count)
		summaries = append(summaries, PropertySummary{
			Source:         sourceValue,
			Title:          toString(title),
			Locality:       toString(locality),
			PropertyType:   toString(propertyType),
			Configurations: convertStringSlice(configurations),
			PricesLakh:     convertFloatSlice(prices),
			ChunkCount:     chunkCount,
		})
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j property result error: %w", err)
	}
	return summaries, nil
}

func (g *Neo4jGraph) Purge(ctx context.Context) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return fmt.Errorf("purge neo4j: %w", err)
	}
	return nil
}

var _ Graph = (*Neo4jGraph)(nil)

func toString(value any) string {
	s, _ := value.(string)
	return s
}

func convertStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		if v, ok := value.([]string); ok {
			return v
		}
		return nil
	}

	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}

func convertFloatSlice(value any) []float64 {
	raw, ok := value.([]any)
	if !ok {
		if v, ok := value.([]float64); ok {
			return v
		}
		return nil
	}

	result := make([]float64, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			result = append(result, v)
		case int64:
			result = append(result, float64(v))
		}
	}
	return result
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
