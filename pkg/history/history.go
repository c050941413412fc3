// Package history persists completed exchanges. The orchestrator uses the
// most recent reply per provider to trim already-seen turns from incoming
// transcripts.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrClosed indicates the store has been closed.
var ErrClosed = errors.New("history: closed")

// Exchange is one prompt/reply pair that went through a provider.
type Exchange struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Prompt    string    `json:"prompt"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// Store records exchanges and answers recency queries.
type Store interface {
	// Record saves an exchange. ID and CreatedAt are filled when empty.
	Record(ctx context.Context, ex Exchange) error

	// LastReply returns the most recent reply for a provider, or empty when
	// the provider has no history.
	LastReply(ctx context.Context, provider string) (string, error)

	// Recent returns up to limit exchanges for a provider, newest first.
	Recent(ctx context.Context, provider string, limit int) ([]Exchange, error)

	Close() error
}

func stamp(ex Exchange) Exchange {
	if ex.ID == "" {
		ex.ID = ulid.Make().String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return ex
}
