package completion

import (
	"context"
	"errors"

	"github.com/froglabs/folio/internal/session"
)

// Tag identifies a completion provider variant.
type Tag string

const (
	TagOpenAI  Tag = "openai"
	TagNovelAI Tag = "novelai"
)

// Completion failure taxonomy. Each is surfaced to the caller as a distinct
// outcome so the widget can react differently (retry vs. report
// misconfiguration).
var (
	// ErrProviderUnavailable means the provider cannot serve at all: missing
	// or rejected credentials.
	ErrProviderUnavailable = errors.New("completion provider unavailable")

	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("completion provider rate limited")

	// ErrEmptyCompletion means the provider answered but normalization left
	// no usable text.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrUnknownProvider means the requested tag has no registered variant.
	ErrUnknownProvider = errors.New("unknown completion provider")
)

// Request carries everything a provider needs to shape its prompt: the new
// user input, the bounded conversation history, and the retrieved grounding
// context.
type Request struct {
	Input   string
	History []session.Turn
	Context string
}

// Provider generates a raw reply for a request. Each variant owns its own
// request shaping, sampling configuration, and credential validation, and
// maps provider-specific failures onto the shared error taxonomy.
type Provider interface {
	Name() Tag
	Generate(ctx context.Context, req Request) (string, error)
}
