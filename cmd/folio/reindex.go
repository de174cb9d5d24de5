package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/froglabs/folio/internal/config"
	"github.com/froglabs/folio/internal/corpus"
	"github.com/froglabs/folio/internal/embedding"
	"github.com/froglabs/folio/internal/indexer"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Reconcile the vector index against the document corpus",
	Long: `Reconcile the vector index against the document corpus.

Unchanged documents are skipped based on their stored fingerprint.
Use --force to re-embed everything regardless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return runReindex(force)
	},
}

func init() {
	reindexCmd.Flags().Bool("force", false, "re-embed all documents, ignoring fingerprints")
}

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

func tint(code, s string) string {
	if noColor {
		return s
	}
	return code + s + ansiReset
}

func runReindex(force bool) error {
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
	defer closeIndex()

	embedder := embedding.NewOpenAIClient(cfg.Providers.OpenAIAPIKey)
	scanner := corpus.NewScanner(cfg.Corpus.DocsDir, cfg.Corpus.MediaDir)
	ix := indexer.New(scanner, embedder, idx)

	// Unlike the server, a one-shot reindex has nothing to fall back on.
	if err := ix.Bootstrap(ctx); err != nil {
		return fmt.Errorf("vector index unreachable: %w", err)
	}

	rep, err := ix.Reconcile(ctx, force)
	if err != nil {
		return fmt.Errorf("reconciling index: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%s %s\n", tint(ansiGreen, "reindex complete:"), rep)
	if rep.Failed > 0 {
		fmt.Fprintln(os.Stderr, tint(ansiYellow, fmt.Sprintf("%d document(s) failed, see log output above", rep.Failed)))
	}
	return nil
}
