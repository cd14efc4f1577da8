// Package tokens provides tiktoken-based token counting for prompt and
// completion accounting.
package tokens

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens using a tiktoken codec.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for the given model name. Every supported
// provider is approximated with the GPT-4 encoding, which is close enough
// for usage accounting.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to a
// character-based estimate (4 chars per token) when the codec is unavailable.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

//nolint:gochecknoglobals // shared codec, initialized once
var (
	sharedOnce    sync.Once
	sharedCounter *Counter
)

// Count counts tokens with a process-wide shared codec.
func Count(text string) int {
	sharedOnce.Do(func() {
		sharedCounter, _ = NewCounter("gpt-4")
	})
	return sharedCounter.Count(text)
}
