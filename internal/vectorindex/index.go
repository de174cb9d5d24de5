package vectorindex

import "context"

// Metadata is the per-record payload stored alongside each embedding.
// Fingerprint carries the source document's last-modified stamp; the indexer
// compares it against the filesystem to decide whether a record is stale.
// JSON field names match the hosted index's existing records.
type Metadata struct {
	Filename    string `json:"filename"`
	Fingerprint string `json:"timestamp"`
	Text        string `json:"text"`
	// Content is the field name older hosted records stored the snippet
	// under; readers fall back to it when Text is empty.
	Content    string   `json:"content,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	MediaFiles []string `json:"mediaFiles,omitempty"`
}

// Match is a nearest-neighbour query result. Score is cosine similarity
// in [0,1], higher is closer.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Index is the vector index service consumed by the indexer and the search
// engine. Implementations: a Pinecone REST client and a local SQLite store.
type Index interface {
	// Upsert inserts or replaces the record keyed by id.
	Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error

	// Query returns up to topK matches ranked by descending similarity.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Fetch looks up a single record's metadata by id. The boolean reports
	// whether the record exists.
	Fetch(ctx context.Context, id string) (Metadata, bool, error)

	// Stats returns the number of records in the index. The indexer uses it
	// as a reachability probe during bootstrap.
	Stats(ctx context.Context) (int, error)
}
