// Package x implements platform.Client against the X API v2.
package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bakkerme/persona-bot/internal/platform"
	"github.com/bakkerme/persona-bot/internal/retry"
)

const (
	defaultBaseURL   = "https://api.x.com/2"
	defaultUserAgent = "persona-bot/0.1"
	minPageSize      = 5
	maxPageSize      = 100
	lookupChunk      = 100
	rateLimitReset   = "x-rate-limit-reset"
)

type Config struct {
	BaseURL string
	// BearerToken is the app-only token used for read endpoints.
	BearerToken string
	// UserAccessToken is an OAuth 2.0 user-context token. It is required for
	// identity lookup and posting, and used for reads when BearerToken is empty.
	UserAccessToken string
	Timeout         time.Duration
	UserAgent       string
	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL     string
	userAgent   string
	read        *http.Client
	write       *http.Client
	readRetry   retry.Config
	writeRetry  retry.Config
	maxBodySize int64
	logger      *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	userToken := strings.TrimSpace(cfg.UserAccessToken)
	bearer := strings.TrimSpace(cfg.BearerToken)
	if userToken == "" && bearer == "" {
		return nil, fmt.Errorf("x: a bearer token or user access token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	readToken := bearer
	if readToken == "" {
		readToken = userToken
	}
	if userToken == "" {
		logger.Warn("X_USER_ACCESS_TOKEN not set, identity lookup and posting will fail")
	}

	return &Client{
		baseURL:     baseURL,
		userAgent:   userAgent,
		read:        tokenClient(cfg.HTTPClient, readToken, timeout),
		write:       tokenClient(cfg.HTTPClient, userToken, timeout),
		readRetry:   retry.Config{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		writeRetry:  retry.Config{Attempts: 1},
		maxBodySize: 4 << 20,
		logger:      logger,
	}, nil
}

func tokenClient(base *http.Client, token string, timeout time.Duration) *http.Client {
	if token == "" {
		client := &http.Client{Timeout: timeout}
		if base != nil {
			client.Transport = base.Transport
		}
		return client
	}
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	client.Timeout = timeout
	return client
}

func (c *Client) Me(ctx context.Context) (platform.User, error) {
	var resp userResponse
	if err := c.do(ctx, c.write, c.readRetry, "users/me", http.MethodGet, "/users/me", nil, nil, &resp); err != nil {
		return platform.User{}, err
	}
	if resp.Data.ID == "" {
		return platform.User{}, fmt.Errorf("x: users/me returned no user")
	}
	return resp.Data.toUser(), nil
}

func (c *Client) LookupUsernames(ctx context.Context, usernames []string) ([]platform.User, error) {
	out := make([]platform.User, 0, len(usernames))
	for start := 0; start < len(usernames); start += lookupChunk {
		end := min(start+lookupChunk, len(usernames))
		query := url.Values{}
		query.Set("usernames", strings.Join(usernames[start:end], ","))
		var resp usersResponse
		if err := c.do(ctx, c.read, c.readRetry, "users/by", http.MethodGet, "/users/by", query, nil, &resp); err != nil {
			return nil, err
		}
		for _, apiErr := range resp.Errors {
			c.logger.Warn("x user lookup error", slog.String("value", apiErr.Value), slog.String("detail", apiErr.Detail))
		}
		for _, u := range resp.Data {
			out = append(out, u.toUser())
		}
	}
	return out, nil
}

func (c *Client) LookupUser(ctx context.Context, id string) (platform.User, error) {
	if strings.TrimSpace(id) == "" {
		return platform.User{}, fmt.Errorf("x: user id is required")
	}
	var resp userResponse
	if err := c.do(ctx, c.read, c.readRetry, "users/:id", http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return platform.User{}, err
	}
	if resp.Data.ID == "" {
		return platform.User{}, fmt.Errorf("x: user %s not found", id)
	}
	return resp.Data.toUser(), nil
}

func (c *Client) Mentions(ctx context.Context, userID string, query platform.TimelineQuery) ([]platform.Post, error) {
	return c.timeline(ctx, "users/:id/mentions", "/users/"+url.PathEscape(userID)+"/mentions", query)
}

func (c *Client) UserPosts(ctx context.Context, userID string, query platform.TimelineQuery) ([]platform.Post, error) {
	return c.timeline(ctx, "users/:id/tweets", "/users/"+url.PathEscape(userID)+"/tweets", query)
}

func (c *Client) Reply(ctx context.Context, inReplyToID, text string) (platform.Post, error) {
	if strings.TrimSpace(text) == "" {
		return platform.Post{}, fmt.Errorf("x: reply text is empty")
	}
	body := createTweetRequest{Text: text}
	body.Reply.InReplyToTweetID = inReplyToID
	var resp createTweetResponse
	// Writes are not retried: a 5xx may still have created the post.
	if err := c.do(ctx, c.write, c.writeRetry, "tweets", http.MethodPost, "/tweets", nil, body, &resp); err != nil {
		return platform.Post{}, err
	}
	return platform.Post{ID: resp.Data.ID, Text: resp.Data.Text}, nil
}

func (c *Client) timeline(ctx context.Context, endpoint, path string, q platform.TimelineQuery) ([]platform.Post, error) {
	query := url.Values{}
	query.Set("max_results", strconv.Itoa(clampPageSize(q.Limit)))
	query.Set("tweet.fields", "created_at,author_id")
	query.Set("expansions", "author_id")
	query.Set("user.fields", "username")
	if q.SinceID != "" {
		query.Set("since_id", q.SinceID)
	}

	var resp timelineResponse
	if err := c.do(ctx, c.read, c.readRetry, endpoint, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}

	usernames := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		usernames[u.ID] = u.Username
	}
	posts := make([]platform.Post, 0, len(resp.Data))
	for _, t := range resp.Data {
		posts = append(posts, platform.Post{
			ID:             t.ID,
			AuthorID:       t.AuthorID,
			AuthorUsername: usernames[t.AuthorID],
			Text:           t.Text,
			CreatedAt:      t.CreatedAt.UTC(),
		})
	}
	if q.Limit > 0 && len(posts) > q.Limit {
		posts = posts[:q.Limit]
	}
	return posts, nil
}

func (c *Client) do(ctx context.Context, client *http.Client, retryCfg retry.Config, endpoint, method, path string, query url.Values, payload any, out any) error {
	err := retry.Do(ctx, retryCfg, func() error {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return retry.Permanent(err)
			}
			body = bytes.NewReader(data)
		}
		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("x %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
		if err != nil {
			return fmt.Errorf("x %s: read body: %w", endpoint, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return retry.Permanent(&platform.RateLimitError{Endpoint: endpoint, Reset: parseReset(resp.Header)})
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("x %s transient error: %s", endpoint, resp.Status)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return retry.Permanent(fmt.Errorf("x %s failed: %s: %s", endpoint, resp.Status, snippet(respBody)))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return retry.Permanent(fmt.Errorf("x %s: decode response: %w", endpoint, err))
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("x request failed", slog.String("endpoint", endpoint), slog.String("error", err.Error()))
	}
	return err
}

func parseReset(h http.Header) time.Time {
	raw := strings.TrimSpace(h.Get(rateLimitReset))
	if raw == "" {
		return time.Time{}
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || epoch <= 0 {
		return time.Time{}
	}
	return time.Unix(epoch, 0).UTC()
}

func clampPageSize(limit int) int {
	if limit < minPageSize {
		return minPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
