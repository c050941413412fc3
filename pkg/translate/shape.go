package translate

import (
	"time"

	"github.com/google/uuid"
)

// wordsPerChunk is the slice size used when emulating a token stream.
const wordsPerChunk = 6

// SimpleResponse is the reply shape of the plain /chat surface.
type SimpleResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// ChatCompletionRequest is the OpenAI-compatible request body. Sampling
// fields are accepted and ignored; a browser page has no knobs for them.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	User        string    `json:"user,omitempty"`
}

// ChatCompletion is the OpenAI-compatible non-streaming response.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one SSE delta event of an emulated stream.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewCompletion shapes a reply into the non-streaming completion object.
func NewCompletion(model, prompt, reply string) ChatCompletion {
	promptTokens := CountTokens(prompt)
	completionTokens := CountTokens(reply)
	return ChatCompletion{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: RoleAssistant, Content: reply},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// NewChunks slices a finished reply into delta chunks on word boundaries.
// Concatenating every delta reproduces the reply exactly; the final element
// is the finish_reason chunk.
func NewChunks(model, reply string) []ChatCompletionChunk {
	id := completionID()
	created := time.Now().Unix()

	chunk := func(delta Delta, finish *string) ChatCompletionChunk {
		return ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	var out []ChatCompletionChunk
	pieces := splitWords(reply, wordsPerChunk)
	for i, piece := range pieces {
		d := Delta{Content: piece}
		if i == 0 {
			d.Role = RoleAssistant
		}
		out = append(out, chunk(d, nil))
	}
	if len(out) == 0 {
		out = append(out, chunk(Delta{Role: RoleAssistant}, nil))
	}
	stop := "stop"
	out = append(out, chunk(Delta{}, &stop))
	return out
}

// splitWords cuts text into groups of n words, each piece keeping its
// trailing whitespace so the pieces concatenate back to text.
func splitWords(text string, n int) []string {
	if text == "" {
		return nil
	}
	var pieces []string
	start := 0
	words := 0
	inWord := false
	for i := 0; i < len(text); i++ {
		isSpace := text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r'
		if inWord && isSpace {
			inWord = false
			words++
		} else if !inWord && !isSpace {
			if words >= n {
				pieces = append(pieces, text[start:i])
				start = i
				words = 0
			}
			inWord = true
		}
	}
	pieces = append(pieces, text[start:])
	return pieces
}

func completionID() string {
	return "chatcmpl-" + uuid.NewString()
}
