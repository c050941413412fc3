package translate

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

func initTokenEncoder() error {
	encoderOnce.Do(func() {
		// cl100k_base matches the GPT-4 family the wire schema imitates.
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// CountTokens counts tokens in text with tiktoken, falling back to a
// whitespace split when the encoder is unavailable (e.g. offline).
func CountTokens(text string) int {
	if err := initTokenEncoder(); err != nil {
		return len(strings.Fields(text))
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}
