package corpus

import (
	"math/rand"
	"strings"
)

// ChatPayload is the request body for a streaming chat probe. Stream and
// Logprobs are always enabled: the trace SSEs ride on the streamed response.
type ChatPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Seed        int64     `json:"seed"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
	Logprobs    bool      `json:"logprobs"`
}

// ChatPayload builds a randomized chat request for the given model.
func (c *Corpus) ChatPayload(model string, rng *rand.Rand) ChatPayload {
	conv := c.conversations[rng.Intn(len(c.conversations))]

	messages := make([]Message, len(conv.Messages))
	copy(messages, conv.Messages)

	return ChatPayload{
		Model:       model,
		Messages:    messages,
		Temperature: rng.Float64() + 0.1,
		Seed:        rng.Int63n(1_000_000_000),
		MaxTokens:   5 + rng.Intn(16),
		Stream:      true,
		Logprobs:    true,
	}
}

// ImagePrompt returns a random image prompt with surrounding quotes
// stripped and escaped quotes unescaped. ok is false when no image corpus
// was loaded.
func (c *Corpus) ImagePrompt(rng *rand.Rand) (string, bool) {
	if len(c.images) == 0 {
		return "", false
	}
	prompt := c.images[rng.Intn(len(c.images))]
	prompt = strings.TrimPrefix(prompt, `"`)
	prompt = strings.TrimSuffix(prompt, `"`)
	return strings.ReplaceAll(prompt, `\"`, `"`), true
}
