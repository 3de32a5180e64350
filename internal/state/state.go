// Package state persists the watermarks of the mention and tracked-account streams.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrNotFound is returned by a Backend that has never been written.
var ErrNotFound = errors.New("state not found")

type Backend interface {
	Load(ctx context.Context) (Watermarks, error)
	Save(ctx context.Context, w Watermarks) error
	Close() error
}

// Watermarks holds the id of the last processed item per stream. Empty means unset.
type Watermarks struct {
	MentionsSinceID string
	// TrackedSinceIDs is keyed by the tracked account's numeric user id.
	TrackedSinceIDs map[string]string
}

func (w Watermarks) Clone() Watermarks {
	out := Watermarks{MentionsSinceID: w.MentionsSinceID, TrackedSinceIDs: make(map[string]string, len(w.TrackedSinceIDs))}
	maps.Copy(out.TrackedSinceIDs, w.TrackedSinceIDs)
	return out
}

type watermarksDocument struct {
	MentionsSinceID *string           `json:"mentions_since_id"`
	TrackedSinceIDs map[string]string `json:"tracked_since_ids"`
}

func (w Watermarks) MarshalJSON() ([]byte, error) {
	doc := watermarksDocument{TrackedSinceIDs: w.TrackedSinceIDs}
	if w.MentionsSinceID != "" {
		id := w.MentionsSinceID
		doc.MentionsSinceID = &id
	}
	if doc.TrackedSinceIDs == nil {
		doc.TrackedSinceIDs = map[string]string{}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON accepts ids written either as strings or as bare numbers.
func (w *Watermarks) UnmarshalJSON(data []byte) error {
	var raw struct {
		MentionsSinceID json.RawMessage            `json:"mentions_since_id"`
		TrackedSinceIDs map[string]json.RawMessage `json:"tracked_since_ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mentions, err := decodeID(raw.MentionsSinceID)
	if err != nil {
		return fmt.Errorf("mentions_since_id: %w", err)
	}
	tracked := make(map[string]string, len(raw.TrackedSinceIDs))
	for userID, value := range raw.TrackedSinceIDs {
		id, err := decodeID(value)
		if err != nil {
			return fmt.Errorf("tracked_since_ids[%s]: %w", userID, err)
		}
		if id != "" {
			tracked[userID] = id
		}
	}
	*w = Watermarks{MentionsSinceID: mentions, TrackedSinceIDs: tracked}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}
