package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/froglabs/folio/internal/session"
)

func TestOpenAIGenerate(t *testing.T) {
	var gotBody struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Luke offers pet sitting."}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProviderWithBaseURL("sk-test", srv.URL)
	got, err := p.Generate(context.Background(), Request{
		Input:   "do you sit for pets?",
		History: []session.Turn{{Role: session.RoleUser, Text: "hi"}, {Role: session.RoleAssistant, Text: "hello!"}},
		Context: "We offer pet sitting and house sitting.",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Luke offers pet sitting." {
		t.Errorf("reply = %q", got)
	}

	if gotBody.Model != openAIModel {
		t.Errorf("model = %q", gotBody.Model)
	}
	// system + 2 history + user
	if len(gotBody.Messages) != 4 {
		t.Fatalf("got %d messages", len(gotBody.Messages))
	}
	if gotBody.Messages[0].Role != "system" || !strings.Contains(gotBody.Messages[0].Content, "We offer pet sitting") {
		t.Errorf("system message missing context: %q", gotBody.Messages[0].Content)
	}
	if last := gotBody.Messages[3]; last.Role != "user" || last.Content != "do you sit for pets?" {
		t.Errorf("last message = %+v", last)
	}
}

func TestOpenAIErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrProviderUnavailable},
		{http.StatusForbidden, ErrProviderUnavailable},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		p := NewOpenAIProviderWithBaseURL("sk-test", srv.URL)
		_, err := p.Generate(context.Background(), Request{Input: "hi"})
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: err = %v, want %v", c.status, err, c.want)
		}
		srv.Close()
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	p := NewOpenAIProvider("")
	_, err := p.Generate(context.Background(), Request{Input: "hi"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestNovelAIGenerate(t *testing.T) {
	var gotBody struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"output": " Happy to help with pet sitting!\nClient: unrelated continuation",
		})
	}))
	defer srv.Close()

	p := NewNovelAIProviderWithBaseURL("pst-short", srv.URL)
	got, err := p.Generate(context.Background(), Request{
		Input:   "do you sit for pets?",
		History: []session.Turn{{Role: session.RoleUser, Text: "hi"}},
		Context: "We offer pet sitting.",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Happy to help with pet sitting!" {
		t.Errorf("reply = %q, continuation lines must be dropped", got)
	}

	if gotBody.Model != novelAIModel {
		t.Errorf("model = %q", gotBody.Model)
	}
	if !strings.Contains(gotBody.Input, "[Reference Documents]:\nWe offer pet sitting.") {
		t.Errorf("prompt missing reference documents: %q", gotBody.Input)
	}
	if !strings.Contains(gotBody.Input, "Client: hi") {
		t.Errorf("prompt missing history: %q", gotBody.Input)
	}
	if !strings.HasSuffix(gotBody.Input, "Assistant:") {
		t.Errorf("prompt does not end with the reply cue: %q", gotBody.Input)
	}
}

func TestNovelAIErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrProviderUnavailable},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		p := NewNovelAIProviderWithBaseURL("pst-short", srv.URL)
		_, err := p.Generate(context.Background(), Request{Input: "hi"})
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: err = %v, want %v", c.status, err, c.want)
		}
		srv.Close()
	}
}

func TestNovelAIKeyFormatCheck(t *testing.T) {
	p := NewNovelAIProvider("not-a-pst-token")
	_, err := p.Generate(context.Background(), Request{Input: "hi"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestNovelAIEmptyInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer srv.Close()

	p := NewNovelAIProviderWithBaseURL("pst-short", srv.URL)
	_, err := p.Generate(context.Background(), Request{Input: "   "})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("err = %v, want ErrEmptyCompletion", err)
	}
}
