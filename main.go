package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/estate-agent/api"
	"github.com/fabfab/estate-agent/chat"
	"github.com/fabfab/estate-agent/config"
	"github.com/fabfab/estate-agent/ingestion"
	"github.com/fabfab/estate-agent/retrieval"
	"github.com/fabfab/estate-agent/routing"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "search":
		searchCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "directory of brochures (pdf, txt, md) to ingest")
	file := flags.String("file", "", "ingest a single file instead of a directory")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer a.Close()

	logger.Printf("ingesting with %s/%s embeddings", strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	var results []ingestion.Result
	if *file != "" {
		result, err := a.ingest.IngestFile(ctx, *file)
		if err != nil {
			logger.Printf("ingest %s failed: %v", *file, err)
		}
		results = append(results, result)
	} else {
		results, err = a.ingest.IngestDirectory(ctx, *dataDir)
		if err != nil {
			logger.Fatalf("ingestion failed: %v", err)
		}
	}

	failed := 0
	for _, result := range results {
		status := "ok"
		if !result.Success {
			status = "FAILED"
			failed++
		}
		fmt.Printf("%-6s %s: %d chunks, %d vectors. %s\n", status, result.Filename, result.ChunksCreated, result.VectorsInserted, result.Message)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "question to ask; omit for an interactive session")
	strategy := flags.String("strategy", "", "force a strategy: direct_retrieval, agent_buy, agent_rent, agent_details")
	topK := flags.Int("top-k", cfg.Retrieval.TopK, "number of context passages to retrieve")
	verbose := flags.Bool("verbose", false, "print routing metadata and sources")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	forced, err := routing.ParseStrategy(*strategy)
	if err != nil {
		logger.Fatalf("parse strategy: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer a.Close()

	sessionID := uuid.NewString()
	ask := func(q string) {
		resp, err := a.chat.Ask(ctx, chat.Request{Query: q, SessionID: sessionID, ForcedStrategy: forced, TopK: *topK})
		if err != nil {
			logger.Printf("chat failed: %v", err)
			return
		}
		printResponse(resp, *verbose)
	}

	if strings.TrimSpace(*question) != "" {
		ask(*question)
		return
	}

	fmt.Println("Ask about Pune properties. Type 'reset' to start over or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return
		case "reset":
			if err := a.chat.ResetSession(ctx, sessionID); err != nil {
				logger.Printf("reset session: %v", err)
			}
			fmt.Println("Conversation cleared.")
			continue
		}
		ask(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("read question: %v", err)
	}
}

func printResponse(resp chat.Response, verbose bool) {
	fmt.Println(resp.Answer)
	if !verbose {
		return
	}
	fmt.Println()
	fmt.Printf("Route: %s (intent %s, confidence %.2f) %s\n", resp.Routing.Strategy, resp.Routing.Intent, resp.Routing.Confidence, resp.Routing.Reasoning)
	fmt.Printf("Answer: %s, confidence %.2f\n", resp.Kind, resp.Confidence)
	for _, call := range resp.ToolCalls {
		fmt.Printf("Tool %s(%s)\n", call.Name, call.Arguments)
	}
	if len(resp.Sources) > 0 {
		fmt.Println("Sources:")
		for idx, source := range resp.Sources {
			fmt.Printf("%d. %s (%s, %s) score %.3f\n", idx+1, source.Title, source.Source, source.Locality, source.Score)
		}
	}
}

func searchCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("search", flag.ExitOnError)
	q := flags.String("query", "", "search text")
	locality := flags.String("locality", "", "restrict the search to one locality")
	topK := flags.Int("top-k", cfg.Retrieval.TopK, "number of passages to return")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse search flags: %v", err)
	}
	if strings.TrimSpace(*q) == "" {
		logger.Fatalf("--query is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer a.Close()

	analysis := a.analyzer.Analyze(*q)
	fmt.Printf("Locations: %v  Types: %v  Bedrooms: %q  Detail: %s\n", analysis.Locations, analysis.PropertyTypes, analysis.Bedrooms, analysis.DetailLevel)

	var results []retrieval.Result
	if *locality != "" {
		hits, err := a.retriever.SearchLocality(ctx, *q, *locality, *topK)
		if err != nil {
			logger.Fatalf("search failed: %v", err)
		}
		results = hits
	} else {
		hits, err := a.retriever.Search(ctx, *q, analysis, *topK)
		if err != nil {
			logger.Fatalf("search failed: %v", err)
		}
		results = hits
	}

	for idx, result := range results {
		fmt.Printf("%d. [%.3f] %s #%d (%s, %s)\n   %s\n", idx+1, result.Score, result.Source, result.ChunkIndex, result.Locality, result.PropertyType, snippet(result.Text, 200))
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "listen address")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer a.Close()

	breakers := make([]api.Breaker, 0, len(a.policies))
	for _, p := range a.policies {
		breakers = append(breakers, p)
	}
	server := api.New(api.Deps{
		Chat:     a.chat,
		Ingest:   a.ingest,
		Search:   a.retriever,
		Analyzer: a.analyzer,
		Breakers: breakers,
	}, cfg.DataDir, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the vector index and the property graph. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer a.Close()

	if err := a.ingest.Clear(ctx); err != nil {
		logger.Fatalf("clear failed: %v", err)
	}
	logger.Println("RAG data removed")
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func printUsage() {
	fmt.Println("Usage: estate-agent <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Ingest brochures into the vector index and property graph (--dir or --file)")
	fmt.Println("  chat     Ask questions about ingested properties (--question, or interactive)")
	fmt.Println("  search   Run a semantic search without composing an answer")
	fmt.Println("  serve    Start the HTTP API")
	fmt.Println("  clear    Remove ingested data from the index and graph")
}
