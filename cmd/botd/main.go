// Botd is a multi-tenant RAG chatbot daemon.
//
// Each bot owns an isolated knowledge base in Qdrant; questions are answered
// by embedding the question, retrieving the bot's most relevant chunks, and
// streaming a grounded completion from the provider resolved for that bot
// (hosted OpenAI-compatible, local Ollama, custom endpoint, or Hugging Face).
//
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables (SECTION_FIELD, e.g. SERVER_PORT, QDRANT_HOST,
// AI_PROVIDER). See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	botd
//
//	# Configure via file and environment
//	SERVER_PORT=9090 QDRANT_HOST=qdrant botd -config botd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/chat"
	"github.com/fyrsmithlabs/botd/internal/config"
	"github.com/fyrsmithlabs/botd/internal/embeddings"
	botdhttp "github.com/fyrsmithlabs/botd/internal/http"
	"github.com/fyrsmithlabs/botd/internal/knowledge"
	"github.com/fyrsmithlabs/botd/internal/logging"
	"github.com/fyrsmithlabs/botd/internal/models"
	"github.com/fyrsmithlabs/botd/internal/settings"
	"github.com/fyrsmithlabs/botd/internal/tenant"
	"github.com/fyrsmithlabs/botd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  botd           Start the botd daemon\n")
			fmt.Fprintf(os.Stderr, "  botd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("botd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the botd daemon and blocks until the context is cancelled.
//
// Initialization order: configuration, logger, local persistence (bbolt),
// Qdrant (with idempotent collection setup), embeddings, knowledge, chat,
// model manager, HTTP server. Shutdown reverses it.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting botd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	// Local persistence: one bbolt file shared by the settings store and
	// the bot registry.
	if err := os.MkdirAll(filepath.Dir(cfg.Data.Path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	db, err := bolt.Open(cfg.Data.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("opening data file %s: %w", cfg.Data.Path, err)
	}
	defer db.Close()

	settingsStore, err := settings.NewBoltStore(db)
	if err != nil {
		return fmt.Errorf("initializing settings store: %w", err)
	}
	botStore, err := tenant.NewBoltStore(db)
	if err != nil {
		return fmt.Errorf("initializing bot registry: %w", err)
	}

	// Vector store.
	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey.Value(),
		UseTLS: cfg.Qdrant.UseTLS,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	err = store.Init(initCtx)
	initCancel()
	if err != nil {
		return fmt.Errorf("initializing collections: %w", err)
	}

	// Services.
	resolver := tenant.NewResolver(settingsStore, cfg.AI)
	embedSvc := embeddings.NewService(resolver, logger)
	defer embedSvc.Close()

	knowledgeSvc := knowledge.NewService(embedSvc, store, logger)
	dispatcher := chat.NewDispatcher(knowledgeSvc, resolver, logger)
	modelMgr := models.NewManager(cfg.AI.OllamaBaseURL, logger)

	srv, err := botdhttp.NewServer(
		botdhttp.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		botdhttp.Deps{
			Settings:  settingsStore,
			Bots:      botStore,
			Knowledge: knowledgeSvc,
			Chat:      dispatcher,
			Models:    modelMgr,
			Vectors:   store,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
