package platform

import (
	"sort"
	"strings"
)

// CompareIDs orders two post identifiers numerically without parsing them,
// so ids wider than 64 bits still compare correctly. It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(strings.TrimSpace(a), "0")
	b = strings.TrimLeft(strings.TrimSpace(b), "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NewerThan reports whether id is strictly after watermark. Every id is newer
// than an empty watermark.
func NewerThan(id, watermark string) bool {
	if watermark == "" {
		return true
	}
	return CompareIDs(id, watermark) > 0
}

// OldestFirst returns the posts strictly newer than watermark, sorted by id ascending.
func OldestFirst(posts []Post, watermark string) []Post {
	out := make([]Post, 0, len(posts))
	for _, post := range posts {
		if post.ID == "" || !NewerThan(post.ID, watermark) {
			continue
		}
		out = append(out, post)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}

// Newest returns the post with the highest id.
func Newest(posts []Post) (Post, bool) {
	var (
		newest Post
		found  bool
	)
	for _, post := range posts {
		if post.ID == "" {
			continue
		}
		if !found || CompareIDs(post.ID, newest.ID) > 0 {
			newest = post
			found = true
		}
	}
	return newest, found
}

// NormalizeUsername lowercases a handle and strips surrounding space and a leading "@".
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
}
