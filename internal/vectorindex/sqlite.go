package vectorindex

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteIndex is a local vector index backed by SQLite with brute-force
// cosine similarity search. Suitable for the corpus sizes this service deals
// with (tens of documents); hosted deployments use PineconeClient instead.
type SQLiteIndex struct {
	db *sql.DB
}

var _ Index = (*SQLiteIndex)(nil)

// OpenSQLite opens (or creates) the index database in dataDir. Pass
// ":memory:" for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteIndex, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "folio.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteIndex{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteIndex) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		filename    TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		text        TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		media_files TEXT NOT NULL DEFAULT '[]',
		embedding   BLOB NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces the record keyed by id.
func (s *SQLiteIndex) Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error {
	mediaJSON, err := json.Marshal(meta.MediaFiles)
	if err != nil {
		return fmt.Errorf("marshalling media files: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO documents
		(id, filename, fingerprint, text, kind, media_files, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, meta.Filename, meta.Fingerprint, meta.Text, meta.Kind, string(mediaJSON), encodeFloat32s(vector))
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", id, err)
	}
	return nil
}

// idScore tracks only id and score during the scan phase of Query; full
// metadata is fetched for the top-K winners afterwards.
type idScore struct {
	ID    string
	Score float32
}

// Query performs brute-force cosine similarity search over all stored
// vectors, returning the top-K records ordered by descending score.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable decode buffer to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Pop ascending, fill descending.
	matches := make([]Match, h.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		meta, ok, err := s.Fetch(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("record %s vanished during query", item.ID)
		}
		matches[i] = Match{ID: item.ID, Score: item.Score, Metadata: meta}
	}
	return matches, nil
}

// Fetch looks up a single record's metadata by id.
func (s *SQLiteIndex) Fetch(ctx context.Context, id string) (Metadata, bool, error) {
	var meta Metadata
	var mediaJSON string
	err := s.db.QueryRowContext(ctx, `SELECT filename, fingerprint, text, kind, media_files
		FROM documents WHERE id = ?`, id).
		Scan(&meta.Filename, &meta.Fingerprint, &meta.Text, &meta.Kind, &mediaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("fetching record %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(mediaJSON), &meta.MediaFiles); err != nil {
		return Metadata{}, false, fmt.Errorf("decoding media files for %s: %w", id, err)
	}
	return meta, true, nil
}

// Stats returns the number of stored records.
func (s *SQLiteIndex) Stats(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it when capacity allows.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * |b|).
// aNorm is the precomputed L2 norm of a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score, used to track the
// top-K candidates during a scan.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
