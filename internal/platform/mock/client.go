package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/bakkerme/persona-bot/internal/platform"
)

// Reply is a recorded call to Client.Reply.
type Reply struct {
	InReplyToID string
	Text        string
}

// Client is an in-memory platform. Timelines are stored in any order and
// served newest-first, filtered by the query like the real API.
type Client struct {
	mu sync.Mutex

	Self      platform.User
	Users     map[string]platform.User
	Mentioned []platform.Post
	Timelines map[string][]platform.Post

	MeErr        error
	LookupErr    error
	MentionsErr  error
	UserPostsErr map[string]error
	ReplyErr     error
	ReplyErrFor  map[string]error

	MentionsCalls  int
	UserPostsCalls map[string]int
	LookupCalls    int
	Queries        []platform.TimelineQuery
	Replies        []Reply
}

func (c *Client) Me(ctx context.Context) (platform.User, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MeErr != nil {
		return platform.User{}, c.MeErr
	}
	return c.Self, nil
}

func (c *Client) LookupUsernames(ctx context.Context, usernames []string) ([]platform.User, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LookupErr != nil {
		return nil, c.LookupErr
	}
	out := []platform.User{}
	for _, name := range usernames {
		for _, user := range c.Users {
			if platform.NormalizeUsername(user.Username) == platform.NormalizeUsername(name) {
				out = append(out, user)
			}
		}
	}
	return out, nil
}

func (c *Client) LookupUser(ctx context.Context, id string) (platform.User, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LookupCalls++
	if c.LookupErr != nil {
		return platform.User{}, c.LookupErr
	}
	user, ok := c.Users[id]
	if !ok {
		return platform.User{}, fmt.Errorf("user %s not found", id)
	}
	return user, nil
}

func (c *Client) Mentions(ctx context.Context, userID string, query platform.TimelineQuery) ([]platform.Post, error) {
	_ = ctx
	_ = userID
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MentionsCalls++
	c.Queries = append(c.Queries, query)
	if c.MentionsErr != nil {
		return nil, c.MentionsErr
	}
	return newestFirst(c.Mentioned, query), nil
}

func (c *Client) UserPosts(ctx context.Context, userID string, query platform.TimelineQuery) ([]platform.Post, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UserPostsCalls == nil {
		c.UserPostsCalls = map[string]int{}
	}
	c.UserPostsCalls[userID]++
	c.Queries = append(c.Queries, query)
	if err := c.UserPostsErr[userID]; err != nil {
		return nil, err
	}
	return newestFirst(c.Timelines[userID], query), nil
}

func (c *Client) Reply(ctx context.Context, inReplyToID, text string) (platform.Post, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ReplyErrFor[inReplyToID]; err != nil {
		return platform.Post{}, err
	}
	if c.ReplyErr != nil {
		return platform.Post{}, c.ReplyErr
	}
	c.Replies = append(c.Replies, Reply{InReplyToID: inReplyToID, Text: text})
	return platform.Post{
		ID:       fmt.Sprintf("reply-%d", len(c.Replies)),
		AuthorID: c.Self.ID,
		Text:     text,
	}, nil
}

// AddMention appends posts to the mentions timeline.
func (c *Client) AddMention(posts ...platform.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mentioned = append(c.Mentioned, posts...)
}

// AddPost appends posts to a user's timeline.
func (c *Client) AddPost(userID string, posts ...platform.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Timelines == nil {
		c.Timelines = map[string][]platform.Post{}
	}
	c.Timelines[userID] = append(c.Timelines[userID], posts...)
}

// RepliedTo returns the ids replied to, in call order.
func (c *Client) RepliedTo() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Replies))
	for _, r := range c.Replies {
		out = append(out, r.InReplyToID)
	}
	return out
}

func newestFirst(posts []platform.Post, query platform.TimelineQuery) []platform.Post {
	sorted := platform.OldestFirst(posts, query.SinceID)
	out := make([]platform.Post, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		out = append(out, sorted[i])
		if query.Limit > 0 && len(out) >= query.Limit {
			break
		}
	}
	return out
}
