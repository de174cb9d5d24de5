package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/froglabs/folio/internal/session"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"
	openAITimeout = 30 * time.Second
)

// personaPrompt is the assistant's fixed role framing. Retrieved context is
// appended to it per request.
const personaPrompt = `You are Luke Maccabee's AI assistant on his portfolio website. Be helpful, friendly, and conversational.

About Luke:
- Full-stack developer and security researcher based in New Zealand
- Available for freelance work and contracts
- Skills: Python, Node.js, Go, security research, OSINT, hardware hacking
- Projects: FrogMaps (OSINT mapping), FrogVPN (censorship-resistant VPN), FrogTalk (E2E encrypted chat)
- Also offers pet sitting and house sitting services in New Zealand
- Contact: Available through the website contact form

Guidelines:
- Use the context when relevant, but don't be overly restrictive
- If asked about availability, say Luke is generally available for new projects and to reach out via the contact form
- Be conversational and helpful - don't refuse to answer reasonable questions
- If you genuinely don't know something specific, suggest they contact Luke directly
- Keep responses concise but informative`

// OpenAIProvider generates replies via the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates the openai variant. An empty apiKey produces a
// provider that fails with ErrProviderUnavailable at call time.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    openAIBaseURL,
		httpClient: &http.Client{Timeout: openAITimeout},
	}
}

// NewOpenAIProviderWithBaseURL creates a provider pointing at a custom base
// URL (for testing).
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	p := NewOpenAIProvider(apiKey)
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *OpenAIProvider) Name() Tag { return TagOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate sends the persona framing, history, and user input as a chat
// completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key is not configured: %w", ErrProviderUnavailable)
	}

	system := personaPrompt
	if req.Context != "" {
		system = personaPrompt + "\n\nContext from knowledge base:\n" + req.Context
	}

	messages := make([]chatMessage, 0, len(req.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: system})
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Input})

	body, err := json.Marshal(map[string]any{
		"model":                 openAIModel,
		"messages":              messages,
		"temperature":           0.8,
		"max_completion_tokens": 1000,
		"presence_penalty":      0.5,
		"frequency_penalty":     0.3,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing chat request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("OpenAI rejected credentials (HTTP %d): %w", resp.StatusCode, ErrProviderUnavailable)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("OpenAI throttled the request: %w", ErrRateLimited)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat completion failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// historyToLines renders turns as "Client:"/"Assistant:" lines for text-prompt
// providers.
func historyToLines(history []session.Turn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		speaker := "Assistant"
		if turn.Role == session.RoleUser {
			speaker = "Client"
		}
		lines = append(lines, speaker+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}
