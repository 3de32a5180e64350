package platform

import (
	"context"
	"time"
)

// User is an account on the platform.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// Post is a single item on a timeline. AuthorUsername is filled when the
// platform returned it alongside the post and is empty otherwise.
type Post struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	Text           string
	CreatedAt      time.Time
}

// TimelineQuery bounds a timeline fetch. An empty SinceID means no lower bound.
type TimelineQuery struct {
	SinceID string
	Limit   int
}

// Client is the narrow set of platform operations the bot needs.
// Timeline methods return posts newest-first, as the platform does.
type Client interface {
	Me(ctx context.Context) (User, error)
	LookupUsernames(ctx context.Context, usernames []string) ([]User, error)
	LookupUser(ctx context.Context, id string) (User, error)
	Mentions(ctx context.Context, userID string, query TimelineQuery) ([]Post, error)
	UserPosts(ctx context.Context, userID string, query TimelineQuery) ([]Post, error)
	Reply(ctx context.Context, inReplyToID, text string) (Post, error)
}
