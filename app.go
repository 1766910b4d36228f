package main

import (
	"context"
	"fmt"
	"log"

	"github.com/fabfab/estate-agent/agents"
	"github.com/fabfab/estate-agent/catalogue"
	"github.com/fabfab/estate-agent/chat"
	"github.com/fabfab/estate-agent/compose"
	"github.com/fabfab/estate-agent/config"
	"github.com/fabfab/estate-agent/database"
	"github.com/fabfab/estate-agent/embeddings"
	"github.com/fabfab/estate-agent/ingestion"
	"github.com/fabfab/estate-agent/knowledge"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/query"
	"github.com/fabfab/estate-agent/resilience"
	"github.com/fabfab/estate-agent/retrieval"
	"github.com/fabfab/estate-agent/routing"
)

// app holds the long-lived clients and services shared by every command.
type app struct {
	analyzer  *query.Analyzer
	retriever *retrieval.Retriever
	ingest    *ingestion.Service
	chat      *chat.Service
	policies  []*resilience.Policy

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp validates the configuration and wires the configured backends.
// The caller must Close the returned app.
func buildApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cat, err := catalogue.Load(cfg.CataloguePath)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}
	if err := embeddings.Probe(ctx, embedder, cfg.Embeddings.Dimension); err != nil {
		return nil, err
	}

	embedPolicy := resilience.New(resilience.Settings{Name: "embedding", Timeout: cfg.Timeouts.Embedding, Retries: 1}, logger)
	searchPolicy := resilience.New(resilience.Settings{Name: "search", Timeout: cfg.Timeouts.Search, Retries: 1}, logger)
	completionPolicy := resilience.New(resilience.Settings{
		Name:              "completion",
		Timeout:           cfg.Timeouts.Completion,
		Retries:           1,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, logger)

	graphPolicy := resilience.New(resilience.Settings{Name: "graph", Timeout: cfg.Timeouts.Graph, Retries: 1}, logger)
	sessionPolicy := resilience.New(resilience.Settings{Name: "sessions", Timeout: cfg.Timeouts.Session}, logger)
	a.policies = []*resilience.Policy{embedPolicy, searchPolicy, completionPolicy, graphPolicy, sessionPolicy}

	var store retrieval.VectorStore
	switch cfg.Retrieval.Backend {
	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := database.EnsureRAGSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
			return nil, err
		}
		store = retrieval.NewPostgresStore(pool, logger)
	default:
		logger.Printf("using in-memory vector index; ingested data is lost on exit")
		store = retrieval.NewMemoryStore(cfg.Embeddings.Dimension)
	}
	guard := retrieval.NewGuard(store)

	var graph knowledge.Graph
	switch cfg.Graph.Backend {
	case config.BackendNeo4j:
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		a.closers = append(a.closers, func() { _ = driver.Close(context.Background()) })
		graph = knowledge.NewGuarded(knowledge.NewNeo4jGraph(driver, logger), graphPolicy)
	default:
		graph = knowledge.NewMemoryGraph()
	}

	var sessions chat.SessionStore
	switch cfg.Sessions.Backend {
	case config.BackendRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		sessions = chat.NewGuardedSessions(chat.NewRedisSessions(client, chat.DefaultHistoryCapacity, cfg.Redis.TTL), sessionPolicy)
	default:
		sessions = chat.NewMemorySessions(chat.DefaultHistoryCapacity)
	}

	chunker, err := ingestion.NewChunker(cfg.Chunking)
	if err != nil {
		return nil, err
	}

	rawLLM, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}
	client := llm.NewGuarded(rawLLM, completionPolicy)

	routerOpts := routing.Options{}
	if cfg.LLM.UseClassifier {
		routerOpts.Classifier = routing.NewLLMClassifier(client)
		routerOpts.Relevance = routing.NewLLMRelevance(client)
	}

	a.analyzer = query.NewAnalyzer(cat)
	a.retriever = retrieval.NewRetriever(embedder, guard, retrieval.Options{
		CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
		CandidateFloor:      cfg.Retrieval.CandidateFloor,
		EmbedPolicy:         embedPolicy,
		SearchPolicy:        searchPolicy,
	}, logger)
	a.ingest = ingestion.NewService(guard, graph, embedder, ingestion.Options{
		Chunker:       chunker,
		Extractor:     ingestion.NewExtractor(cat),
		MinTextLength: cfg.Chunking.MinTextLength,
		EmbedPolicy:   embedPolicy,
	}, logger)
	a.chat = chat.NewService(chat.Deps{
		Router:    routing.NewRouter(cat, routerOpts, logger),
		Analyzer:  a.analyzer,
		Retriever: a.retriever,
		Composer:  compose.New(""),
		Agents:    agents.NewRunner(client, graph, a.retriever, logger).WithAnalyzer(a.analyzer),
		LLM:       client,
		Sessions:  sessions,
	}, chat.Options{
		TopK:        cfg.Retrieval.TopK,
		Temperature: llm.Temp(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)

	ok = true
	return a, nil
}
