package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/froglabs/folio/internal/corpus"
	"github.com/froglabs/folio/internal/embedding"
	"github.com/froglabs/folio/internal/retry"
	"github.com/froglabs/folio/internal/vectorindex"
)

// ErrReconcileInProgress is returned when a reconciliation is requested while
// another run holds the single-flight lock.
var ErrReconcileInProgress = errors.New("reconciliation already in progress")

// embedConcurrency bounds parallel embedding calls so a large corpus doesn't
// flood the provider.
const embedConcurrency = 4

// Scanner enumerates the source corpus.
type Scanner interface {
	Scan() []corpus.Document
}

// Report summarizes a reconciliation run.
type Report struct {
	Processed int
	Skipped   int
	Failed    int
}

func (r Report) String() string {
	return fmt.Sprintf("processed=%d skipped=%d failed=%d", r.Processed, r.Skipped, r.Failed)
}

// Indexer reconciles the vector index against the scanned corpus: documents
// whose fingerprint differs from the stored record are re-embedded and
// upserted; everything else is skipped. Records for deleted source files are
// left in place (no destructive pruning).
type Indexer struct {
	scanner  Scanner
	embedder embedding.Embedder
	index    vectorindex.Index
	policy   retry.Policy
	logger   *slog.Logger

	mu sync.Mutex // single-flight guard for Reconcile
}

// New creates an Indexer with the default retry policy for bootstrap probes.
func New(scanner Scanner, embedder embedding.Embedder, index vectorindex.Index) *Indexer {
	return &Indexer{
		scanner:  scanner,
		embedder: embedder,
		index:    index,
		policy:   retry.Default(),
		logger:   slog.Default(),
	}
}

// Bootstrap verifies the vector index is reachable, retrying transient
// failures under the policy. It must succeed before the first reconcile of a
// run is trusted; callers decide whether failure is fatal.
func (ix *Indexer) Bootstrap(ctx context.Context) error {
	return ix.policy.Do(ctx, "vector index probe", func(ctx context.Context) error {
		count, err := ix.index.Stats(ctx)
		if err != nil {
			return err
		}
		ix.logger.Info("vector index reachable", "records", count)
		return nil
	})
}

// Reconcile scans the corpus and brings the index up to date. With force set,
// fingerprint comparison is skipped and every document is re-embedded.
// Only one reconciliation may run at a time; a concurrent call returns
// ErrReconcileInProgress without touching the index.
func (ix *Indexer) Reconcile(ctx context.Context, force bool) (Report, error) {
	if !ix.mu.TryLock() {
		return Report{}, ErrReconcileInProgress
	}
	defer ix.mu.Unlock()

	docs := ix.scanner.Scan()

	var rep Report
	var repMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for _, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outcome, err := ix.processDocument(gctx, doc, force)
			repMu.Lock()
			switch outcome {
			case outcomeProcessed:
				rep.Processed++
			case outcomeSkipped:
				rep.Skipped++
			case outcomeFailed:
				rep.Failed++
			}
			repMu.Unlock()

			if err != nil {
				// Per-document failures never abort the batch.
				ix.logger.Warn("document indexing failed", "id", doc.ID, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rep, err
	}
	return rep, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (ix *Indexer) processDocument(ctx context.Context, doc corpus.Document, force bool) (outcome, error) {
	if !force {
		meta, ok, err := ix.index.Fetch(ctx, doc.ID)
		if err != nil {
			// A failed lookup is treated as a missing record: re-embedding an
			// up-to-date document is cheaper than silently dropping a changed one.
			ix.logger.Debug("fingerprint lookup failed, re-embedding", "id", doc.ID, "error", err)
		} else if ok && meta.Fingerprint == doc.Fingerprint {
			return outcomeSkipped, nil
		}
	}

	vec, err := ix.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return outcomeFailed, fmt.Errorf("embedding: %w", err)
	}

	meta := vectorindex.Metadata{
		Filename:    doc.ID,
		Fingerprint: doc.Fingerprint,
		Text:        doc.Text,
		Kind:        string(doc.Kind),
		MediaFiles:  doc.MediaFiles,
	}
	if err := ix.index.Upsert(ctx, doc.ID, vec, meta); err != nil {
		return outcomeFailed, fmt.Errorf("upserting: %w", err)
	}

	ix.logger.Info("indexed document", "id", doc.ID, "kind", doc.Kind)
	return outcomeProcessed, nil
}

// Run reconciles on a fixed interval until ctx is cancelled. Overlap with a
// manually triggered run is benign: the later trigger is skipped.
func (ix *Indexer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rep, err := ix.Reconcile(ctx, false)
		switch {
		case errors.Is(err, ErrReconcileInProgress):
			ix.logger.Info("periodic reconcile skipped, another run in progress")
		case err != nil:
			ix.logger.Error("periodic reconcile failed", "error", err)
		default:
			ix.logger.Info("periodic reconcile complete",
				"processed", rep.Processed, "skipped", rep.Skipped, "failed", rep.Failed)
		}
	}
}
