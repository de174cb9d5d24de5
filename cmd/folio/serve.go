package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/froglabs/folio/internal/api"
	"github.com/froglabs/folio/internal/completion"
	"github.com/froglabs/folio/internal/config"
	"github.com/froglabs/folio/internal/corpus"
	"github.com/froglabs/folio/internal/embedding"
	"github.com/froglabs/folio/internal/indexer"
	"github.com/froglabs/folio/internal/search"
	"github.com/froglabs/folio/internal/session"
	"github.com/froglabs/folio/internal/vectorindex"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the folio server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// openIndex builds the configured vector index backend. The returned closer
// is a no-op for the hosted backend.
func openIndex(cfg config.Config) (vectorindex.Index, func() error, error) {
	switch cfg.Index.Backend {
	case "pinecone":
		return vectorindex.NewPineconeClient(cfg.Index.PineconeHost, cfg.Index.PineconeAPIKey), func() error { return nil }, nil
	case "sqlite":
		idx, err := vectorindex.OpenSQLite(cfg.Index.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening local index: %w", err)
		}
		return idx, idx.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "folio version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idx, closeIndex, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeIndex(); err != nil {
			slog.Warn("closing index", "error", err)
		}
	}()

	embedder := embedding.NewOpenAIClient(cfg.Providers.OpenAIAPIKey)
	scanner := corpus.NewScanner(cfg.Corpus.DocsDir, cfg.Corpus.MediaDir)
	ix := indexer.New(scanner, embedder, idx)

	// The corpus is brought up to date in the background: the server answers
	// requests against whatever the index already holds while the first
	// reconcile runs.
	go func() {
		if err := ix.Bootstrap(ctx); err != nil {
			slog.Error("vector index unreachable, skipping startup reconcile", "error", err)
			return
		}
		rep, err := ix.Reconcile(ctx, false)
		if err != nil {
			slog.Error("startup reconcile failed", "error", err)
			return
		}
		slog.Info("startup reconcile complete",
			"processed", rep.Processed, "skipped", rep.Skipped, "failed", rep.Failed)
	}()
	go ix.Run(ctx, cfg.Corpus.ReindexInterval)

	sessions := session.NewMemoryStore()
	go session.NewSweeper(sessions, cfg.Session.SweepInterval, cfg.Session.MaxIdle).Run(ctx)

	engine := search.NewEngine(embedder, idx, scanner)
	router := completion.NewRouter(
		completion.Tag(cfg.Providers.Default),
		completion.NewOpenAIProvider(cfg.Providers.OpenAIAPIKey),
		completion.NewNovelAIProvider(cfg.Providers.NovelAIAPIKey),
	)

	handler := api.NewHandler(api.Deps{
		Search:    engine,
		Completer: router,
		Sessions:  sessions,
		PublicDir: cfg.Server.PublicDir,
	})

	// MCP server over stdio, alongside HTTP.
	mcpSrv := api.NewMCPServer(engine, version)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "folio listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
