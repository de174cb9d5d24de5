package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	novelAIBaseURL = "https://api.novelai.net"
	novelAIModel   = "6B-v4"
	novelAITimeout = 30 * time.Second
)

// novelAIKeyPattern is the persistent-token format NovelAI issues.
var novelAIKeyPattern = regexp.MustCompile(`^pst-[a-zA-Z0-9]{64}$`)

// NovelAIProvider generates replies via the NovelAI text generation API,
// which takes a single flat prompt rather than chat messages.
type NovelAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*NovelAIProvider)(nil)

// NewNovelAIProvider creates the novelai variant.
func NewNovelAIProvider(apiKey string) *NovelAIProvider {
	return &NovelAIProvider{
		apiKey:     apiKey,
		baseURL:    novelAIBaseURL,
		httpClient: &http.Client{Timeout: novelAITimeout},
	}
}

// NewNovelAIProviderWithBaseURL creates a provider pointing at a custom base
// URL (for testing). The key format check is skipped so tests can use short
// fake keys.
func NewNovelAIProviderWithBaseURL(apiKey, baseURL string) *NovelAIProvider {
	p := NewNovelAIProvider(apiKey)
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *NovelAIProvider) Name() Tag { return TagNovelAI }

// Generate builds the flat text prompt and returns the first line of the
// model's continuation.
func (p *NovelAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("NovelAI API key is not configured: %w", ErrProviderUnavailable)
	}
	if p.baseURL == novelAIBaseURL && !novelAIKeyPattern.MatchString(p.apiKey) {
		return "", fmt.Errorf("NovelAI API key has invalid format: %w", ErrProviderUnavailable)
	}

	input := strings.TrimSpace(req.Input)
	if input == "" {
		return "", fmt.Errorf("empty prompt: %w", ErrEmptyCompletion)
	}

	prompt := p.buildPrompt(input, req)

	payload := map[string]any{
		"input": prompt,
		"model": novelAIModel,
		"parameters": map[string]any{
			"use_string":                true,
			"temperature":               0.6,
			"min_length":                20,
			"max_length":                200,
			"top_k":                     20,
			"top_p":                     0.8,
			"tail_free_sampling":        0.92,
			"repetition_penalty":        1.1,
			"repetition_penalty_range":  1024,
			"repetition_penalty_slope":  0.1,
			"do_sample":                 true,
			"early_stopping":            false,
			"num_beams":                 5,
			"bad_words_ids":             [][]int{{0}},
			"generate_until_sentence":   true,
			"prefix":                    "Assistant:",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshalling generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/ai/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating generate request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing generate request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("NovelAI rejected credentials (HTTP %d): %w", resp.StatusCode, ErrProviderUnavailable)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("NovelAI throttled the request: %w", ErrRateLimited)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generate failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		Output string `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}

	// The model continues past the reply; keep only the first line.
	line, _, _ := strings.Cut(out.Output, "\n")
	return strings.TrimSpace(line), nil
}

func (p *NovelAIProvider) buildPrompt(input string, req Request) string {
	var sb strings.Builder
	sb.WriteString("***\n")
	sb.WriteString("[Conversation History]:\n")
	sb.WriteString(historyToLines(req.History))
	sb.WriteString("\n\n[Reference Documents]:\n")
	sb.WriteString(req.Context)
	sb.WriteString("\n\nInstructions: Use the reference documents to inform your response, staying true to the content while maintaining your role as the site owner's assistant. If the documents aren't relevant to the query, rely on your standard background information.\n\n")
	sb.WriteString("Client: ")
	sb.WriteString(input)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
