package models

import (
	"math/rand"
	"sort"
	"testing"
	"time"
)

func TestComparePositions(t *testing.T) {
	tests := []struct {
		name string
		a, b Position
		want int
	}{
		{"pinned before unpinned", Position{Pinned: true, Order: 1}, Position{Order: 100}, -1},
		{"unpinned after pinned", Position{Order: 100}, Position{Pinned: true, Order: 1}, 1},
		{"higher order first", Position{Order: 90}, Position{Order: 10}, -1},
		{"lower order last", Position{Order: 10}, Position{Order: 90}, 1},
		{"tie break ascending", Position{Order: 5, TieBreak: 1}, Position{Order: 5, TieBreak: 2}, -1},
		{"tie break descending", Position{Order: 5, TieBreak: 9}, Position{Order: 5, TieBreak: 2}, 1},
		{"equal", Position{Order: 5, TieBreak: 2}, Position{Order: 5, TieBreak: 2}, 0},
		{"pinned order descending", Position{Pinned: true, Order: 7}, Position{Pinned: true, Order: 3}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComparePositions(tt.a, tt.b); got != tt.want {
				t.Fatalf("ComparePositions(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestComparePositionsIsStrictTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	positions := make([]Position, 0, 200)
	for i := 0; i < 200; i++ {
		positions = append(positions, Position{
			Pinned:   rng.Intn(4) == 0,
			Order:    uint64(rng.Intn(20) + 1),
			TieBreak: int64(i + 1),
		})
	}

	for _, a := range positions {
		if ComparePositions(a, a) != 0 || a.Before(a) {
			t.Fatalf("irreflexivity violated for %v", a)
		}
		for _, b := range positions {
			ab := ComparePositions(a, b)
			ba := ComparePositions(b, a)
			if ab != -ba {
				t.Fatalf("antisymmetry violated for %v, %v", a, b)
			}
			if ab == 0 && a.TieBreak != b.TieBreak {
				t.Fatalf("distinct tie breaks compared equal: %v, %v", a, b)
			}
		}
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].Before(positions[j]) })
	for i := 1; i < len(positions); i++ {
		for j := 0; j < i; j++ {
			if !positions[j].Before(positions[i]) {
				t.Fatalf("transitivity violated at %d,%d: %v !< %v", j, i, positions[j], positions[i])
			}
		}
	}
}

func TestPositionIsMember(t *testing.T) {
	if (Position{Pinned: true}).IsMember() {
		t.Fatal("order 0 must not be a member even when pinned")
	}
	if !(Position{Order: 1}).IsMember() {
		t.Fatal("order 1 must be a member")
	}
}

func TestSnapshotDiff(t *testing.T) {
	now := time.Now()
	base := Snapshot{Title: "a", LastActivity: now, UnreadCount: 1}
	next := base
	next.Title = "b"
	next.UnreadCount = 2
	next.Muted = true

	kind := base.Diff(next)
	if !kind.Has(ChangeTitle | ChangeUnread | ChangeMute) {
		t.Fatalf("expected title|unread|mute, got %s", kind)
	}
	if kind.Has(ChangeDraft) {
		t.Fatalf("draft should not be reported, got %s", kind)
	}
	if got := base.Diff(base); got != ChangeNone {
		t.Fatalf("expected no change, got %s", got)
	}
	if got := kind.String(); got != "title|unread|mute" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestFilterMatches(t *testing.T) {
	snap := Snapshot{Title: "Release Chat", UnreadCount: 2, Muted: false}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"unread", Filter{UnreadOnly: true}, true},
		{"muted", Filter{MutedOnly: true}, false},
		{"mentions", Filter{MentionsOnly: true}, false},
		{"query case insensitive", Filter{Query: "release"}, true},
		{"query mismatch", Filter{Query: "deploy"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(snap); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
	if !(Filter{}).IsZero() || (Filter{UnreadOnly: true}).IsZero() {
		t.Fatal("IsZero mismatch")
	}
}
