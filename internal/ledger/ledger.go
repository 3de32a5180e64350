// Package ledger records which posts the bot has already answered.
package ledger

import "context"

// Ledger remembers replied post ids so a re-fetched post is never answered twice.
type Ledger interface {
	Replied(ctx context.Context, postID string) (bool, error)
	Record(ctx context.Context, postID, replyID string) error
	Close() error
}
