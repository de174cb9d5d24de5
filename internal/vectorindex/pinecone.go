package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// PineconeClient is a minimal REST client for a Pinecone index endpoint.
// host is the index host URL (https://<index>-<project>.svc.<env>.pinecone.io).
type PineconeClient struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

var _ Index = (*PineconeClient)(nil)

// NewPineconeClient creates a client for the given index host.
func NewPineconeClient(host, apiKey string) *PineconeClient {
	return &PineconeClient{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type pineconeVector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Upsert writes a single vector record, replacing any existing record with
// the same id.
func (c *PineconeClient) Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error {
	body := map[string]any{
		"vectors": []pineconeVector{{ID: id, Values: vector, Metadata: meta}},
	}
	return c.postJSON(ctx, "/vectors/upsert", body, nil)
}

// Query runs a nearest-neighbour search and returns matches in the order the
// index ranked them (descending score).
func (c *PineconeClient) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	req := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	var resp struct {
		Matches []struct {
			ID       string   `json:"id"`
			Score    float32  `json:"score"`
			Metadata Metadata `json:"metadata"`
		} `json:"matches"`
	}
	if err := c.postJSON(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

// Fetch retrieves a single record's metadata by id.
func (c *PineconeClient) Fetch(ctx context.Context, id string) (Metadata, bool, error) {
	u := c.host + "/vectors/fetch?ids=" + url.QueryEscape(id)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Metadata{}, false, fmt.Errorf("creating fetch request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Metadata{}, false, fmt.Errorf("fetching vector %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Metadata{}, false, fmt.Errorf("fetch %s failed: %s", id, resp.Status)
	}

	var out struct {
		Vectors map[string]struct {
			Metadata Metadata `json:"metadata"`
		} `json:"vectors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Metadata{}, false, fmt.Errorf("decoding fetch response: %w", err)
	}

	v, ok := out.Vectors[id]
	if !ok {
		return Metadata{}, false, nil
	}
	return v.Metadata, true, nil
}

// Stats returns the total record count reported by the index.
func (c *PineconeClient) Stats(ctx context.Context) (int, error) {
	var resp struct {
		TotalVectorCount int `json:"totalVectorCount"`
	}
	if err := c.postJSON(ctx, "/describe_index_stats", map[string]any{}, &resp); err != nil {
		return 0, err
	}
	return resp.TotalVectorCount, nil
}

func (c *PineconeClient) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s failed: %s: %s", path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *PineconeClient) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}
