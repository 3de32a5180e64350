package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type memoryBackend struct {
	saved   Watermarks
	loadErr error
	saveErr error
	saves   int
}

func (m *memoryBackend) Load(context.Context) (Watermarks, error) {
	if m.loadErr != nil {
		return Watermarks{}, m.loadErr
	}
	return m.saved.Clone(), nil
}

func (m *memoryBackend) Save(_ context.Context, w Watermarks) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = w.Clone()
	return nil
}

func (m *memoryBackend) Close() error { return nil }

func TestWatermarksJSON(t *testing.T) {
	var empty Watermarks
	data, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `{"mentions_since_id":null,"tracked_since_ids":{}}`; got != want {
		t.Fatalf("marshal empty = %s, want %s", got, want)
	}

	var decoded Watermarks
	if err := json.Unmarshal([]byte(`{"mentions_since_id": 1790000000000000001, "tracked_since_ids": {"44196397": "1790000000000000002", "12": 7}}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Watermarks{
		MentionsSinceID: "1790000000000000001",
		TrackedSinceIDs: map[string]string{"44196397": "1790000000000000002", "12": "7"},
	}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Fatalf("unmarshal mismatch (-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"mentions_since_id": {"nested": true}}`), &decoded); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestOpenDefaultsWhenMissingOrCorrupt(t *testing.T) {
	for name, backend := range map[string]*memoryBackend{
		"missing": {loadErr: ErrNotFound},
		"corrupt": {loadErr: errors.New("bad json")},
	} {
		t.Run(name, func(t *testing.T) {
			store := Open(context.Background(), backend, nil)
			got := store.Snapshot()
			want := Watermarks{TrackedSinceIDs: map[string]string{}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAdvanceOnlyMovesForward(t *testing.T) {
	backend := &memoryBackend{loadErr: ErrNotFound}
	store := Open(context.Background(), backend, nil)
	ctx := context.Background()

	steps := []struct {
		id      string
		changed bool
	}{
		{"100", true},
		{"99", false},
		{"100", false},
		{"1000", true},
		{"", false},
	}
	for _, step := range steps {
		changed, err := store.AdvanceMentions(ctx, step.id)
		if err != nil {
			t.Fatalf("AdvanceMentions(%q) error = %v", step.id, err)
		}
		if changed != step.changed {
			t.Fatalf("AdvanceMentions(%q) changed = %v, want %v", step.id, changed, step.changed)
		}
	}
	if got := store.MentionsSinceID(); got != "1000" {
		t.Fatalf("MentionsSinceID = %q, want 1000", got)
	}
	if backend.saves != 2 {
		t.Fatalf("saves = %d, want one per advance", backend.saves)
	}

	if _, err := store.AdvanceTracked(ctx, "7", "50"); err != nil {
		t.Fatalf("AdvanceTracked: %v", err)
	}
	if changed, _ := store.AdvanceTracked(ctx, "7", "49"); changed {
		t.Fatalf("tracked watermark moved backwards")
	}
	if id, ok := store.TrackedSinceID("7"); !ok || id != "50" {
		t.Fatalf("TrackedSinceID = %q, %v", id, ok)
	}
	if _, ok := store.TrackedSinceID("8"); ok {
		t.Fatalf("unknown account should have no watermark")
	}
}

func TestSaveFailureKeepsInMemoryValue(t *testing.T) {
	backend := &memoryBackend{loadErr: ErrNotFound, saveErr: errors.New("disk full")}
	store := Open(context.Background(), backend, nil)

	changed, err := store.AdvanceMentions(context.Background(), "5")
	if err == nil {
		t.Fatalf("expected save error to be reported")
	}
	if !changed {
		t.Fatalf("advance should stick despite the failed write")
	}
	if got := store.MentionsSinceID(); got != "5" {
		t.Fatalf("MentionsSinceID = %q, want 5", got)
	}

	backend.saveErr = nil
	if _, err := store.AdvanceMentions(context.Background(), "6"); err != nil {
		t.Fatalf("AdvanceMentions: %v", err)
	}
	if backend.saved.MentionsSinceID != "6" {
		t.Fatalf("next write should carry the latest value, got %q", backend.saved.MentionsSinceID)
	}
}

func TestFileBackendRoundTripAndRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")
	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	ctx := context.Background()

	store := Open(ctx, backend, nil)
	if _, err := store.AdvanceMentions(ctx, "120"); err != nil {
		t.Fatalf("AdvanceMentions: %v", err)
	}
	if _, err := store.AdvanceTracked(ctx, "44196397", "101"); err != nil {
		t.Fatalf("AdvanceTracked: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("state file is not JSON: %v", err)
	}
	if doc["mentions_since_id"] != "120" {
		t.Fatalf("mentions_since_id = %v", doc["mentions_since_id"])
	}

	reopened := Open(ctx, backend, nil)
	want := Watermarks{MentionsSinceID: "120", TrackedSinceIDs: map[string]string{"44196397": "101"}}
	if diff := cmp.Diff(want, reopened.Snapshot()); diff != "" {
		t.Fatalf("reopened state mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the state file, found %d entries", len(entries))
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	backend, _ := NewFileBackend(path)
	if _, err := backend.Load(context.Background()); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected corruption error, got %v", err)
	}
	store := Open(context.Background(), backend, nil)
	if got := store.MentionsSinceID(); got != "" {
		t.Fatalf("corrupt state should start empty, got %q", got)
	}
}

func TestBadgerBackend(t *testing.T) {
	backend, err := NewBadgerBackend(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("NewBadgerBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	ctx := context.Background()

	if _, err := backend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty db = %v, want ErrNotFound", err)
	}
	want := Watermarks{MentionsSinceID: "9", TrackedSinceIDs: map[string]string{"1": "2"}}
	if err := backend.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("badger round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisBackend(t *testing.T) {
	url := os.Getenv("STATE_REDIS_URL")
	if url == "" {
		t.Skip("STATE_REDIS_URL not set")
	}
	ctx := context.Background()
	backend, err := NewRedisBackend(ctx, url, "persona-bot:test:watermarks")
	if err != nil {
		t.Fatalf("NewRedisBackend: %v", err)
	}
	t.Cleanup(func() {
		_ = backend.client.Del(ctx, backend.key).Err()
		_ = backend.Close()
	})
	_ = backend.client.Del(ctx, backend.key).Err()

	if _, err := backend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty key = %v, want ErrNotFound", err)
	}
	want := Watermarks{MentionsSinceID: "3", TrackedSinceIDs: map[string]string{}}
	if err := backend.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("redis round trip mismatch (-want +got):\n%s", diff)
	}
}
