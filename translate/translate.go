// Package translate maps message content between languages through a
// remote translation service.
package translate

import (
	"context"
	"fmt"
)

// Translator turns text written in source into target. Implementations do
// not cache: every call reaches the backing service.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// ModelID names the translation model for a language pair, e.g. "en-fr".
func ModelID(source, target string) string {
	return fmt.Sprintf("%s-%s", source, target)
}

// Identity returns text unchanged. It backs the "none" provider used in
// local development when no translation service is configured.
type Identity struct{}

func (Identity) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}
