package platform

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCompareIDsIsNumeric(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"9", "10", -1},
		{"10", "9", 1},
		{"100", "100", 0},
		{"0100", "100", 0},
		{"1790000000000000001", "1790000000000000000", 1},
		{"18446744073709551616", "18446744073709551615", 1},
	}
	for _, tc := range cases {
		if got := CompareIDs(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareIDs(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestOldestFirstFiltersAndSorts(t *testing.T) {
	posts := []Post{{ID: "5"}, {ID: "3"}, {ID: "4"}, {ID: "2"}, {ID: ""}}
	got := OldestFirst(posts, "2")
	want := []string{"3", "4", "5"}
	if len(got) != len(want) {
		t.Fatalf("got %d posts, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestOldestFirstWithoutWatermarkKeepsEverything(t *testing.T) {
	got := OldestFirst([]Post{{ID: "11"}, {ID: "9"}}, "")
	if len(got) != 2 || got[0].ID != "9" || got[1].ID != "11" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestNewest(t *testing.T) {
	if _, ok := Newest(nil); ok {
		t.Fatalf("expected no newest post")
	}
	newest, ok := Newest([]Post{{ID: "99"}, {ID: "100"}, {ID: "98"}})
	if !ok || newest.ID != "100" {
		t.Fatalf("newest = %+v", newest)
	}
}

func TestNormalizeUsername(t *testing.T) {
	for in, want := range map[string]string{
		" @Alice ": "alice",
		"BOB":      "bob",
		"@@x":      "@x",
	} {
		if got := NormalizeUsername(in); got != want {
			t.Fatalf("NormalizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAsRateLimitFindsWrappedError(t *testing.T) {
	reset := time.Unix(1700000000, 0)
	err := fmt.Errorf("fetch mentions: %w", &RateLimitError{Endpoint: "mentions", Reset: reset})
	rl, ok := AsRateLimit(err)
	if !ok {
		t.Fatalf("expected rate limit error")
	}
	if !rl.HasReset() || !rl.Reset.Equal(reset) {
		t.Fatalf("reset = %v", rl.Reset)
	}
	if _, ok := AsRateLimit(errors.New("boom")); ok {
		t.Fatalf("plain error should not be a rate limit")
	}
}
