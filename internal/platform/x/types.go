package x

import (
	"time"

	"github.com/bakkerme/persona-bot/internal/platform"
)

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (u apiUser) toUser() platform.User {
	return platform.User{ID: u.ID, Username: u.Username, Name: u.Name}
}

type apiError struct {
	Value  string `json:"value"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

type apiTweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type userResponse struct {
	Data apiUser `json:"data"`
}

type usersResponse struct {
	Data   []apiUser  `json:"data"`
	Errors []apiError `json:"errors"`
}

type timelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
	} `json:"meta"`
}

type createTweetRequest struct {
	Text  string `json:"text"`
	Reply struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
