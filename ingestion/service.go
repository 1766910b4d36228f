package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/embeddings"
	"github.com/fabfab/estate-agent/knowledge"
	"github.com/fabfab/estate-agent/resilience"
	"github.com/fabfab/estate-agent/retrieval"
)

// Metadata keys written on every chunk. Overrides with the same key win.
const (
	KeyLocality       = "locality"
	KeyPropertyType   = "property_type"
	KeyConfigurations = "configurations"
	KeyPricesLakh     = "prices_lakh"
)

const (
	defaultMinTextLength = 100
	defaultWorkers       = 4
	embedBatchSize       = 32
)

type Options struct {
	Chunker       Chunker
	Extractor     *Extractor
	MinTextLength int
	Workers       int
	EmbedPolicy   *resilience.Policy
}

type Service struct {
	store     retrieval.VectorStore
	graph     knowledge.Graph
	embedder  embeddings.Embedder
	chunker   Chunker
	extractor *Extractor
	minText   int
	workers   int
	policy    *resilience.Policy
	logger    *log.Logger
}

// Request is one document's raw text. Metadata overrides the extracted tags
// on every chunk.
type Request struct {
	RawText  string
	Source   string
	Title    string
	Metadata map[string]string
}

type Result struct {
	Success         bool              `json:"success"`
	Filename        string            `json:"filename"`
	ChunksCreated   int               `json:"chunks_created"`
	VectorsInserted int               `json:"vectors_inserted"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Message         string            `json:"message"`
}

// NewService wires ingestion. graph may be nil when no property graph is kept.
func NewService(store retrieval.VectorStore, graph knowledge.Graph, embedder embeddings.Embedder, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = NewExtractor(nil)
	}
	if opts.Chunker.Size <= 0 {
		opts.Chunker = Chunker{Size: 500, Overlap: 100}
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = defaultMinTextLength
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	return &Service{
		store:     store,
		graph:     graph,
		embedder:  embedder,
		chunker:   opts.Chunker,
		extractor: opts.Extractor,
		minText:   opts.MinTextLength,
		workers:   opts.Workers,
		policy:    opts.EmbedPolicy,
		logger:    logger,
	}
}

// IngestText chunks, tags, embeds and stores one document. The Result is
// always populated; the error carries the typed cause of a failure.
func (s *Service) IngestText(ctx context.Context, req Request) (Result, error) {
	result := Result{Filename: req.Source}
	if s.store == nil || s.embedder == nil {
		err := fmt.Errorf("ingestion service is not configured")
		result.Message = err.Error()
		return result, err
	}

	text := strings.TrimSpace(req.RawText)
	if strings.TrimSpace(req.Source) == "" {
		err := apperr.DataQuality("", "source identifier is required")
		result.Message = err.Error()
		return result, err
	}
	if utf8.RuneCountInString(text) < s.minText {
		err := apperr.DataQuality(req.Source, fmt.Sprintf("extracted text is shorter than %d characters", s.minText))
		result.Message = err.Error()
		return result, err
	}

	pieces, err := s.chunker.Chunk(text)
	if err != nil {
		err = fmt.Errorf("chunk %s: %w", req.Source, err)
		result.Message = err.Error()
		return result, err
	}
	if len(pieces) == 0 {
		err := apperr.DataQuality(req.Source, "no chunks produced")
		result.Message = err.Error()
		return result, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = ExtractTitle(text, req.Source)
	}

	chunks := make([]retrieval.Chunk, len(pieces))
	for i, piece := range pieces {
		meta := ChunkMetadata(s.extractor.Extract(piece), req.Metadata)
		chunks[i] = retrieval.Chunk{
			ID:           uuid.NewString(),
			Source:       req.Source,
			Title:        title,
			Index:        i,
			Text:         piece,
			Locality:     meta[KeyLocality],
			PropertyType: meta[KeyPropertyType],
			Metadata:     meta,
		}
	}

	vectors, err := s.embed(ctx, req.Source, pieces)
	if err != nil {
		s.logger.Printf("embed chunks failed for %s: %v", req.Source, err)
		result.ChunksCreated = len(chunks)
		result.Message = err.Error()
		return result, err
	}

	docMeta := s.extractor.Extract(text)
	sha := documentHash(text, req.Metadata)
	// The index write and the graph sync happen together so a concurrent
	// Clear cannot purge the graph between them.
	var upserted retrieval.UpsertResult
	write := func(ctx context.Context, store retrieval.VectorStore) error {
		var err error
		upserted, err = store.Upsert(ctx, retrieval.Document{
			Source:     req.Source,
			Title:      title,
			SHA:        sha,
			Chunks:     chunks,
			Embeddings: vectors,
		})
		if err != nil {
			return err
		}
		if upserted.Changed {
			s.syncGraph(ctx, upserted.DocumentID, sha, title, req, docMeta, chunks)
		}
		return nil
	}
	if guard, ok := s.store.(*retrieval.Guard); ok {
		err = guard.Shared(ctx, write)
	} else {
		err = write(ctx, s.store)
	}
	if err != nil {
		err = fmt.Errorf("store chunks for %s: %w", req.Source, err)
		s.logger.Printf("%v", err)
		result.ChunksCreated = len(chunks)
		result.Message = err.Error()
		return result, err
	}

	result.Success = true
	result.ChunksCreated = len(chunks)
	result.VectorsInserted = upserted.Inserted
	result.Metadata = ChunkMetadata(docMeta, req.Metadata)
	if !upserted.Changed {
		result.Message = fmt.Sprintf("%s is unchanged", req.Source)
		s.logger.Printf("no updates required for %s", req.Source)
		return result, nil
	}
	result.Message = fmt.Sprintf("ingested %s (%d chunks)", req.Source, len(chunks))
	s.logger.Printf("ingested %s (%d chunks)", req.Source, len(chunks))
	return result, nil
}

// IngestBytes parses an uploaded payload by its file name and ingests it.
func (s *Service) IngestBytes(ctx context.Context, name string, data []byte, overrides map[string]string) (Result, error) {
	format := DetectFormat(name)
	parsed, err := ParseDocument(name, format, data)
	if err != nil {
		s.logger.Printf("parse failed for %s: %v", name, err)
		return Result{Filename: name, Message: err.Error()}, apperr.DataQuality(name, err.Error())
	}
	return s.IngestText(ctx, Request{
		RawText:  parsed.Text,
		Source:   name,
		Title:    parsed.Title,
		Metadata: overrides,
	})
}

func (s *Service) IngestFile(ctx context.Context, path string) (Result, error) {
	return s.ingestPath(ctx, path, filepath.Base(path))
}

// IngestDirectory ingests every supported file under dir with bounded
// concurrency. Per-file failures are reported in the results and never abort
// the batch.
func (s *Service) IngestDirectory(ctx context.Context, dir string) ([]Result, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}

	paths := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(path).Supported() {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk data directory: %w", err)
	}

	if len(paths) == 0 {
		s.logger.Printf("no supported documents found in %s", dir)
		return nil, nil
	}

	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			source, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				source = path
			}
			result, err := s.ingestPath(gctx, path, filepath.ToSlash(source))
			if err != nil {
				s.logger.Printf("ingest failed for %s: %v", path, err)
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) ingestPath(ctx context.Context, path, source string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read file: %w", err)
		return Result{Filename: source, Message: err.Error()}, err
	}
	return s.IngestBytes(ctx, source, data, nil)
}

func (s *Service) embed(ctx context.Context, source string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := resilience.Do(ctx, s.policy, "embed chunks", source, func(ctx context.Context) ([][]float32, error) {
			return s.embedder.Embed(ctx, texts[start:end])
		})
		if err != nil {
			return nil, fmt.Errorf("generate embeddings: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *Service) syncGraph(ctx context.Context, docID, sha, title string, req Request, meta Metadata, chunks []retrieval.Chunk) {
	if s.graph == nil {
		return
	}

	merged := ChunkMetadata(meta, req.Metadata)
	nodes := make([]knowledge.Chunk, len(chunks))
	for i, chunk := range chunks {
		nodes[i] = knowledge.Chunk{ID: chunk.ID, Index: chunk.Index, Text: chunk.Text}
	}
	doc := knowledge.Document{
		ID:             docID,
		Source:         req.Source,
		Title:          title,
		SHA:            sha,
		Locality:       merged[KeyLocality],
		PropertyType:   merged[KeyPropertyType],
		Configurations: meta.Configurations,
		PricesLakh:     meta.PricesLakh,
		Chunks:         nodes,
	}
	if err := s.graph.SyncDocument(ctx, doc); err != nil {
		s.logger.Printf("sync knowledge graph failed for %s: %v", req.Source, err)
	}
}

// ChunkMetadata renders extracted tags as a string map and applies overrides.
func ChunkMetadata(meta Metadata, overrides map[string]string) map[string]string {
	out := map[string]string{
		KeyLocality:     meta.Locality,
		KeyPropertyType: meta.PropertyType,
	}
	if len(meta.Configurations) > 0 {
		out[KeyConfigurations] = strings.Join(meta.Configurations, ", ")
	}
	if len(meta.PricesLakh) > 0 {
		prices := make([]string, len(meta.PricesLakh))
		for i, p := range meta.PricesLakh {
			prices[i] = strconv.FormatFloat(p, 'f', -1, 64)
		}
		out[KeyPricesLakh] = strings.Join(prices, ", ")
	}
	for key, value := range overrides {
		if strings.TrimSpace(value) == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func documentHash(text string, overrides map[string]string) string {
	h := sha256.New()
	h.Write([]byte(text))
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(h, "\x00%s=%s", key, overrides[key])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clear empties the vector index and purges the property graph. When the
// store is a retrieval.Guard both happen with ingestion and search blocked.
func (s *Service) Clear(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("ingestion service is not configured")
	}

	purge := func(ctx context.Context, store retrieval.VectorStore) error {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("reset vector index: %w", err)
		}
		if s.graph != nil {
			if err := s.graph.Purge(ctx); err != nil {
				return fmt.Errorf("purge property graph: %w", err)
			}
		}
		s.logger.Printf("cleared vector index and property graph")
		return nil
	}

	if guard, ok := s.store.(*retrieval.Guard); ok {
		return guard.Exclusive(ctx, purge)
	}
	return purge(ctx, s.store)
}
