// Package main provides the knowledge graph construction server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/kgforge/internal/api"
	"github.com/raphaelgruber/kgforge/internal/config"
	"github.com/raphaelgruber/kgforge/internal/db"
	"github.com/raphaelgruber/kgforge/internal/embedding"
	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/llm"
	"github.com/raphaelgruber/kgforge/internal/loader"
	"github.com/raphaelgruber/kgforge/internal/metrics"
	"github.com/raphaelgruber/kgforge/internal/server"
	"github.com/raphaelgruber/kgforge/internal/service"
	"github.com/raphaelgruber/kgforge/internal/stages"
	"github.com/raphaelgruber/kgforge/internal/store"
	"github.com/raphaelgruber/kgforge/internal/store/sqlite"
	"github.com/raphaelgruber/kgforge/internal/vectorstore"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from the SurrealDB store on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *wipeDB || os.Getenv("KGFORGE_WIPE_DB") == "true"); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, wipe bool) error {
	mc := metrics.NewCollector()
	backends := vectorstore.NewRegistry(cfg.VectorType)

	chroma, err := vectorstore.NewChromem(cfg.VectorPersistDir, cfg.VectorCompress, mc)
	if err != nil {
		return fmt.Errorf("open chromem: %w", err)
	}
	backends.Register(vectorstore.TypeChroma, chroma)

	st, err := openStore(ctx, cfg, mc, backends, wipe)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	var connector graphstore.Connector
	if cfg.GraphURI != "" {
		neo, err := graphstore.NewNeo4j(ctx, cfg.GraphURI, cfg.GraphUser, cfg.GraphPassword, mc)
		if err != nil {
			return fmt.Errorf("connect graph store: %w", err)
		}
		defer func() { _ = neo.Close(context.Background()) }()
		connector = neo
	} else {
		slog.Warn("no graph store configured, graph import will fail", "env", "KGFORGE_GRAPH_URI")
	}

	model, err := llm.NewModel(ctx, cfg, mc)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	embedder := embedding.NewLazy(func() (embedding.Embedder, error) {
		return embedding.New(embedding.Config{
			Provider:  embedding.ProviderType(cfg.EmbeddingProvider),
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
			Host:      cfg.EmbeddingHost,
			APIKey:    cfg.LLMAPIKey,
		})
	}, mc)

	notifier := service.NewNotifier(service.DefaultSubscriberBuffer)
	registry := service.NewRegistry(st, notifier)

	topologies, err := stages.Build(stages.Set{
		Parse:   &stages.FileParsing{Loader: loader.New(), Reporter: registry},
		Extract: &stages.LLMExtraction{Client: model, Model: cfg.LLMModel, CharLimit: cfg.CharLimit, Retries: 2, Reporter: registry},
		Mapping: &stages.MappingExtraction{Reporter: registry},
		Import: &stages.GraphImport{
			Connector:    connector,
			DefaultSpace: cfg.DefaultSpace,
			Reporter:     registry,
		},
		Chunk:       &stages.Chunking{Config: cfg.Chunking()},
		Embed:       &stages.Embedding{Embedder: embedder, Reporter: registry},
		StoreVector: &stages.VectorStore{Spaces: st, Backends: backends},
	})
	if err != nil {
		return fmt.Errorf("build pipelines: %w", err)
	}

	if n, err := registry.Recover(ctx); err != nil {
		slog.Warn("failed to recover interrupted tasks", "error", err)
	} else if n > 0 {
		slog.Info("recovered interrupted tasks", "count", n)
	}

	builder, err := service.NewGraphBuilder(service.BuilderConfig{
		Registry:     registry,
		Tasks:        st,
		Spaces:       st,
		Topologies:   topologies,
		Connector:    connector,
		Metrics:      mc,
		UploadDir:    cfg.UploadDir,
		DefaultSpace: cfg.DefaultSpace,
		Workers:      cfg.Workers,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := builder.Shutdown(sctx); err != nil {
			slog.Warn("builder shutdown incomplete", "error", err)
		}
	}()

	search := service.NewSearchService(st, backends, embedder)
	handler := api.New(builder, service.NewTemplateService(st), search, notifier, mc)
	srv := server.New(fmt.Sprintf(":%d", cfg.Port), handler.Router())

	slog.Info("starting kgforge-server",
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"llm", cfg.LLMProvider,
		"embedding", cfg.EmbeddingProvider,
		"vector_types", backends.Types())
	return srv.Run(ctx)
}

// openStore opens the metadata store. The SurrealDB store also serves as
// the "surreal" vector backend.
func openStore(ctx context.Context, cfg config.Config, mc *metrics.Collector, backends *vectorstore.Registry, wipe bool) (store.Store, error) {
	switch cfg.StoreDriver {
	case "surreal":
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		client, err := db.NewClient(cctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, slog.Default(), mc)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if wipe {
			if err := client.WipeData(cctx); err != nil {
				_ = client.Close(ctx)
				return nil, fmt.Errorf("wipe database: %w", err)
			}
		}
		if err := client.InitSchema(cctx, cfg.EmbeddingDimension); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		backends.Register(vectorstore.TypeSurreal, vectorstore.NewSurreal(client))
		return client, nil

	case "sqlite", "":
		if wipe {
			slog.Warn("wipe is only supported for the surreal store")
		}
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}
