package completion

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/froglabs/folio/internal/session"
)

// maxHistoryTurns bounds the conversation history sent to a provider.
const maxHistoryTurns = 12

var (
	rolePrefixRe = regexp.MustCompile(`^(?i)assistant\s*:\s*`)
	punctSpaceRe = regexp.MustCompile(`([.,!?])([A-Za-z])`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Router dispatches completion requests to a registered provider variant and
// normalizes the raw reply.
type Router struct {
	providers  map[Tag]Provider
	defaultTag Tag
}

// NewRouter creates a Router over the given providers. defaultTag is used
// when a request names no provider.
func NewRouter(defaultTag Tag, providers ...Provider) *Router {
	m := make(map[Tag]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Router{providers: m, defaultTag: defaultTag}
}

// Complete generates a reply for the user input using the tagged provider.
// History is truncated to the most recent turns before prompt shaping.
// Failures are one of ErrUnknownProvider, ErrProviderUnavailable,
// ErrRateLimited, ErrEmptyCompletion, or a wrapped transport error.
func (r *Router) Complete(ctx context.Context, tag Tag, input string, history []session.Turn, contextText string) (string, error) {
	if tag == "" {
		tag = r.defaultTag
	}
	provider, ok := r.providers[tag]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}

	raw, err := provider.Generate(ctx, Request{
		Input:   input,
		History: truncateHistory(history),
		Context: contextText,
	})
	if err != nil {
		return "", err
	}

	reply := Normalize(raw)
	if reply == "" {
		return "", fmt.Errorf("%s returned no usable text: %w", tag, ErrEmptyCompletion)
	}
	return reply, nil
}

func truncateHistory(history []session.Turn) []session.Turn {
	if len(history) <= maxHistoryTurns {
		return history
	}
	return history[len(history)-maxHistoryTurns:]
}

// Normalize cleans a raw provider reply: strips a leading role-label echo,
// fixes missing spaces after punctuation, and collapses whitespace runs.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = rolePrefixRe.ReplaceAllString(s, "")
	s = punctSpaceRe.ReplaceAllString(s, "$1 $2")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
