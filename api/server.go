package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/chat"
	"github.com/fabfab/estate-agent/ingestion"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/retrieval"
	"github.com/fabfab/estate-agent/routing"
)

const (
	defaultSearchTopK = 5
	maxUploadBytes    = 32 << 20
)

type Asker interface {
	Ask(ctx context.Context, req chat.Request) (chat.Response, error)
	ResetSession(ctx context.Context, sessionID string) error
}

type Ingester interface {
	IngestText(ctx context.Context, req ingestion.Request) (ingestion.Result, error)
	IngestBytes(ctx context.Context, name string, data []byte, overrides map[string]string) (ingestion.Result, error)
	IngestDirectory(ctx context.Context, dir string) ([]ingestion.Result, error)
	Clear(ctx context.Context) error
}

type Searcher interface {
	Search(ctx context.Context, queryText string, analysis query.Analysis, topK int) ([]retrieval.Result, error)
	SearchLocality(ctx context.Context, queryText, locality string, topK int) ([]retrieval.Result, error)
}

// Deps are the services behind the HTTP handlers. Analyzer defaults to the
// built-in catalogue.
// Breaker reports the circuit state of one guarded external service.
type Breaker interface {
	Name() string
	State() string
}

type Deps struct {
	Chat     Asker
	Ingest   Ingester
	Search   Searcher
	Analyzer *query.Analyzer
	Breakers []Breaker
}

type healthResponse struct {
	Message  string            `json:"message"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// Server exposes HTTP handlers for querying and maintaining the property index.
type Server struct {
	deps    Deps
	dataDir string
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Query     string        `json:"query"`
	SessionID string        `json:"session_id"`
	History   []llm.Message `json:"history"`
	Strategy  string        `json:"strategy"`
	TopK      int           `json:"top_k"`
}

type searchRequest struct {
	Query    string `json:"query"`
	Locality string `json:"locality"`
	TopK     int    `json:"top_k"`
}

type searchResponse struct {
	Query    string             `json:"query"`
	Analysis query.Analysis     `json:"analysis"`
	Results  []retrieval.Result `json:"results"`
}

type ingestRequest struct {
	RawText  string            `json:"raw_text"`
	Source   string            `json:"source"`
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata"`
	Dir      string            `json:"dir"`
}

type ingestBatchResponse struct {
	Results []ingestion.Result `json:"results"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

// New constructs a Server. dataDir is ingested when a directory ingest names
// no directory.
func New(deps Deps, dataDir string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = query.NewAnalyzer(nil)
	}

	s := &Server{deps: deps, dataDir: dataDir, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/sessions/reset", s.handleSessionReset)
	mux.HandleFunc("/v1/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	resp := healthResponse{Message: "ok"}
	if len(s.deps.Breakers) > 0 {
		resp.Breakers = make(map[string]string, len(s.deps.Breakers))
		for _, b := range s.deps.Breakers {
			resp.Breakers[b.Name()] = b.State()
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat service is not configured"))
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	strategy, err := routing.ParseStrategy(req.Strategy)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.deps.Chat.Ask(r.Context(), chat.Request{
		Query:          req.Query,
		SessionID:      req.SessionID,
		History:        req.History,
		ForcedStrategy: strategy,
		TopK:           req.TopK,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Search == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("search is not configured"))
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}

	analysis := s.deps.Analyzer.Analyze(req.Query)
	var (
		results []retrieval.Result
		err     error
	)
	if locality := strings.TrimSpace(req.Locality); locality != "" {
		results, err = s.deps.Search.SearchLocality(r.Context(), req.Query, locality, req.TopK)
	} else {
		results, err = s.deps.Search.Search(r.Context(), req.Query, analysis, req.TopK)
	}
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("search failed: %w", err))
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}

	s.writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Analysis: analysis, Results: results})
}

// handleIngest accepts a multipart upload in the "file" field, raw text as
// JSON, or a JSON directory request.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		s.handleUpload(w, r)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	ctx := r.Context()
	if strings.TrimSpace(req.RawText) == "" {
		dir := strings.TrimSpace(req.Dir)
		if dir == "" {
			dir = s.dataDir
		}
		if dir == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("raw_text or dir is required"))
			return
		}
		s.logger.Printf("ingesting documents from %s", dir)
		results, err := s.deps.Ingest.IngestDirectory(ctx, dir)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
			return
		}
		s.writeJSON(w, http.StatusOK, ingestBatchResponse{Results: results})
		return
	}

	result, err := s.deps.Ingest.IngestText(ctx, ingestion.Request{
		RawText:  req.RawText,
		Source:   req.Source,
		Title:    req.Title,
		Metadata: req.Metadata,
	})
	s.writeIngestResult(w, result, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	overrides := map[string]string{}
	for _, key := range []string{ingestion.KeyLocality, ingestion.KeyPropertyType} {
		if value := strings.TrimSpace(r.FormValue(key)); value != "" {
			overrides[key] = value
		}
	}

	result, err := s.deps.Ingest.IngestBytes(r.Context(), header.Filename, data, overrides)
	s.writeIngestResult(w, result, err)
}

func (s *Server) writeIngestResult(w http.ResponseWriter, result ingestion.Result, err error) {
	if err != nil {
		s.logger.Printf("ingest %s failed: %v", result.Filename, err)
		result.Success = false
		if result.Message == "" {
			result.Message = err.Error()
		}
		s.writeJSON(w, statusFor(err), result)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat service is not configured"))
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("session_id is required"))
		return
	}

	if err := s.deps.Chat.ResetSession(r.Context(), req.SessionID); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("reset session: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session reset"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	if err := s.deps.Ingest.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear index: %w", err))
		return
	}

	s.logger.Println("vector index and property graph cleared")
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "rag data cleared"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case apperr.IsDataQuality(err):
		return http.StatusUnprocessableEntity
	case apperr.IsExternal(err):
		return http.StatusBadGateway
	case apperr.IsConfiguration(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

var (
	_ Asker    = (*chat.Service)(nil)
	_ Ingester = (*ingestion.Service)(nil)
	_ Searcher = (*retrieval.Retriever)(nil)
)
