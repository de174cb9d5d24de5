package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"strings"

	"github.com/froglabs/folio/internal/corpus"
	"github.com/froglabs/folio/internal/embedding"
	"github.com/froglabs/folio/internal/vectorindex"
)

// Mode selects the relevance threshold applied to matches. Focused mode
// serves the narrower media corpus, which is smaller and sparser, so it
// accepts lower-scoring matches.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeFocused  Mode = "focused"
)

const (
	standardThreshold = 0.5
	focusedThreshold  = 0.35
	defaultTopK       = 3
)

// ParseMode maps a wire-level mode string to a Mode. Empty means standard.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeFocused:
		return ModeFocused, nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

func (m Mode) threshold() float32 {
	if m == ModeFocused {
		return focusedThreshold
	}
	return standardThreshold
}

// Match is a single retrieved snippet with attribution.
type Match struct {
	Content    string   `json:"content"`
	Source     string   `json:"source"`
	Score      float32  `json:"score"`
	MediaFiles []string `json:"mediaFiles,omitempty"`
}

// Result is the grounding context for one query: the concatenated snippet
// text plus per-snippet attribution, in the index's ranking order.
type Result struct {
	ContextText string  `json:"contextText"`
	Sources     []Match `json:"sources"`
}

// SourceLabels renders the sources as display strings, e.g.
// "services.txt (70% match)".
func (r Result) SourceLabels() []string {
	labels := make([]string, 0, len(r.Sources))
	for _, m := range r.Sources {
		labels = append(labels, fmt.Sprintf("%s (%d%% match)", m.Source, int(math.Round(float64(m.Score)*100))))
	}
	return labels
}

// MediaResolver maps caption base names to their media URLs. The corpus
// Scanner implements this.
type MediaResolver interface {
	MediaIndex() map[string][]string
}

// Engine answers semantic queries against the vector index.
type Engine struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	media    MediaResolver
	topK     int
	logger   *slog.Logger
}

// NewEngine creates a search Engine. media may be nil when the deployment
// has no media corpus.
func NewEngine(embedder embedding.Embedder, index vectorindex.Index, media MediaResolver) *Engine {
	return &Engine{
		embedder: embedder,
		index:    index,
		media:    media,
		topK:     defaultTopK,
		logger:   slog.Default(),
	}
}

// Search embeds the query, retrieves the top-K nearest records, and filters
// them down to relevant, non-empty matches. Backend failures degrade to an
// empty Result: a chat turn with no grounding beats a failed chat turn.
func (e *Engine) Search(ctx context.Context, query string, mode Mode) Result {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, returning empty context", "error", err)
		return Result{}
	}

	matches, err := e.index.Query(ctx, vec, e.topK)
	if err != nil {
		e.logger.Warn("vector index query failed, returning empty context", "error", err)
		return Result{}
	}

	threshold := mode.threshold()
	var result Result
	var snippets []string

	for _, m := range matches {
		if m.Score <= threshold {
			continue
		}
		content := strings.TrimSpace(m.Metadata.Text)
		if content == "" {
			// Older records stored the snippet under "content".
			content = strings.TrimSpace(m.Metadata.Content)
		}
		if content == "" {
			continue
		}

		source := m.Metadata.Filename
		if source == "" {
			source = m.ID
		}

		result.Sources = append(result.Sources, Match{
			Content:    content,
			Source:     source,
			Score:      m.Score,
			MediaFiles: e.resolveMedia(m.Metadata),
		})
		snippets = append(snippets, content)
	}

	result.ContextText = strings.Join(snippets, "\n\n")
	return result
}

// resolveMedia returns the deduplicated media URLs for a match. Stored
// metadata wins; captions indexed before media tracking fall back to the
// live media index keyed by base filename.
func (e *Engine) resolveMedia(meta vectorindex.Metadata) []string {
	var candidates []string
	candidates = append(candidates, meta.MediaFiles...)

	if len(candidates) == 0 && meta.Kind == string(corpus.KindMediaCaption) && e.media != nil {
		base := strings.TrimSuffix(path.Base(meta.Filename), ".txt")
		candidates = append(candidates, e.media.MediaIndex()[base]...)
	}

	if len(candidates) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(candidates))
	deduped := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		deduped = append(deduped, c)
	}
	return deduped
}
