package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/froglabs/folio/internal/vectorindex"
)

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.vec, m.err
}

type mockIndex struct {
	matches []vectorindex.Match
	err     error
}

func (m *mockIndex) Upsert(ctx context.Context, id string, vector []float32, meta vectorindex.Metadata) error {
	return nil
}
func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int) ([]vectorindex.Match, error) {
	return m.matches, m.err
}
func (m *mockIndex) Fetch(ctx context.Context, id string) (vectorindex.Metadata, bool, error) {
	return vectorindex.Metadata{}, false, nil
}
func (m *mockIndex) Stats(ctx context.Context) (int, error) { return len(m.matches), nil }

type mockMedia struct {
	index map[string][]string
}

func (m *mockMedia) MediaIndex() map[string][]string { return m.index }

func newTestEngine(idx *mockIndex, media MediaResolver) *Engine {
	return NewEngine(&mockEmbedder{vec: []float32{1, 0}}, idx, media)
}

func TestSearchThresholdFiltering(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "a.txt", Score: 0.7, Metadata: vectorindex.Metadata{Filename: "a.txt", Text: "high"}},
		{ID: "b.txt", Score: 0.4, Metadata: vectorindex.Metadata{Filename: "b.txt", Text: "middle"}},
		{ID: "c.txt", Score: 0.2, Metadata: vectorindex.Metadata{Filename: "c.txt", Text: "low"}},
	}}
	e := newTestEngine(idx, nil)

	standard := e.Search(context.Background(), "query", ModeStandard)
	if len(standard.Sources) != 1 || standard.Sources[0].Source != "a.txt" {
		t.Errorf("standard sources = %+v, want only a.txt", standard.Sources)
	}
	for _, m := range standard.Sources {
		if m.Score <= 0.5 {
			t.Errorf("standard mode returned score %v below threshold", m.Score)
		}
	}

	focused := e.Search(context.Background(), "query", ModeFocused)
	if len(focused.Sources) != 2 {
		t.Errorf("focused sources = %+v, want a.txt and b.txt", focused.Sources)
	}
}

func TestSearchDropsEmptyContent(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "blank.txt", Score: 0.9, Metadata: vectorindex.Metadata{Filename: "blank.txt", Text: "   \n  "}},
		{ID: "real.txt", Score: 0.8, Metadata: vectorindex.Metadata{Filename: "real.txt", Text: "content"}},
	}}
	e := newTestEngine(idx, nil)

	result := e.Search(context.Background(), "query", ModeStandard)
	if len(result.Sources) != 1 || result.Sources[0].Source != "real.txt" {
		t.Errorf("sources = %+v", result.Sources)
	}
}

func TestSearchFallsBackToLegacyContentField(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "old.txt", Score: 0.9, Metadata: vectorindex.Metadata{Filename: "old.txt", Content: "legacy snippet"}},
		{ID: "new.txt", Score: 0.8, Metadata: vectorindex.Metadata{Filename: "new.txt", Text: "current snippet"}},
	}}
	e := newTestEngine(idx, nil)

	result := e.Search(context.Background(), "query", ModeStandard)
	if len(result.Sources) != 2 {
		t.Fatalf("sources = %+v, legacy record was dropped", result.Sources)
	}
	if result.Sources[0].Content != "legacy snippet" {
		t.Errorf("legacy content = %q", result.Sources[0].Content)
	}
}

func TestSearchPreservesIndexOrder(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "first.txt", Score: 0.9, Metadata: vectorindex.Metadata{Filename: "first.txt", Text: "one"}},
		{ID: "second.txt", Score: 0.8, Metadata: vectorindex.Metadata{Filename: "second.txt", Text: "two"}},
		{ID: "third.txt", Score: 0.7, Metadata: vectorindex.Metadata{Filename: "third.txt", Text: "three"}},
	}}
	e := newTestEngine(idx, nil)

	result := e.Search(context.Background(), "query", ModeStandard)
	var got []string
	for _, m := range result.Sources {
		got = append(got, m.Source)
	}
	if !slices.Equal(got, []string{"first.txt", "second.txt", "third.txt"}) {
		t.Errorf("order = %v", got)
	}
	if result.ContextText != "one\n\ntwo\n\nthree" {
		t.Errorf("ContextText = %q", result.ContextText)
	}
}

func TestSearchDegradesOnIndexFailure(t *testing.T) {
	idx := &mockIndex{err: errors.New("index unreachable")}
	e := newTestEngine(idx, nil)

	result := e.Search(context.Background(), "query", ModeStandard)
	if result.ContextText != "" || len(result.Sources) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestSearchDegradesOnEmbeddingFailure(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "a.txt", Score: 0.9, Metadata: vectorindex.Metadata{Text: "never returned"}},
	}}
	e := NewEngine(&mockEmbedder{err: errors.New("embed down")}, idx, nil)

	result := e.Search(context.Background(), "query", ModeStandard)
	if result.ContextText != "" || len(result.Sources) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestSearchMediaFromMetadataDeduplicated(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "media/spot.txt", Score: 0.8, Metadata: vectorindex.Metadata{
			Filename: "media/spot.txt",
			Text:     "Spot the dog",
			Kind:     "media-caption",
			MediaFiles: []string{
				"/static/media/spot.jpg",
				"/static/media/spot.mp4",
				"/static/media/spot.jpg",
			},
		}},
	}}
	e := newTestEngine(idx, nil)

	result := e.Search(context.Background(), "dog", ModeStandard)
	want := []string{"/static/media/spot.jpg", "/static/media/spot.mp4"}
	if !slices.Equal(result.Sources[0].MediaFiles, want) {
		t.Errorf("MediaFiles = %v, want %v", result.Sources[0].MediaFiles, want)
	}
}

func TestSearchMediaFallsBackToMediaIndex(t *testing.T) {
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "media/spot.txt", Score: 0.8, Metadata: vectorindex.Metadata{
			Filename: "media/spot.txt",
			Text:     "Spot the dog",
			Kind:     "media-caption",
		}},
	}}
	media := &mockMedia{index: map[string][]string{
		"spot": {"/static/media/spot.jpg", "/static/media/spot.mp4"},
	}}
	e := newTestEngine(idx, media)

	result := e.Search(context.Background(), "dog", ModeStandard)
	want := []string{"/static/media/spot.jpg", "/static/media/spot.mp4"}
	if !slices.Equal(result.Sources[0].MediaFiles, want) {
		t.Errorf("MediaFiles = %v, want %v", result.Sources[0].MediaFiles, want)
	}
}

func TestSearchEndToEndScenario(t *testing.T) {
	// One document, mocked index scoring it 0.7 against the query.
	idx := &mockIndex{matches: []vectorindex.Match{
		{ID: "services.txt", Score: 0.7, Metadata: vectorindex.Metadata{
			Filename: "services.txt",
			Text:     "We offer pet sitting and house sitting.",
		}},
	}}
	e := newTestEngine(idx, nil)

	result := e.Search(context.Background(), "do you sit for pets?", ModeStandard)
	if !strings.Contains(result.ContextText, "We offer pet sitting and house sitting.") {
		t.Errorf("ContextText = %q", result.ContextText)
	}
	labels := result.SourceLabels()
	if len(labels) != 1 || labels[0] != "services.txt (70% match)" {
		t.Errorf("labels = %v", labels)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeStandard {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if m, err := ParseMode("focused"); err != nil || m != ModeFocused {
		t.Errorf("ParseMode(focused) = %v, %v", m, err)
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}
