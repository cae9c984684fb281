package agent

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/pkg/models"
)

func historyOf(turns ...string) []*models.Message {
	msgs := make([]*models.Message, len(turns))
	for i, content := range turns {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = &models.Message{Role: role, Content: content}
	}
	return msgs
}

func TestWindowKeepsSmallHistoryIntact(t *testing.T) {
	w := NewWindow(nil)
	history := historyOf("What was Q3 revenue?", "Q3 revenue was $12M.")
	incoming := &models.Message{Role: models.RoleUser, Content: "And Q4?"}

	bundle := w.Build("system", history, incoming, nil, time.Now())

	if bundle.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", bundle.Dropped)
	}
	if len(bundle.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(bundle.Messages))
	}
	if bundle.Messages[0].Content != "What was Q3 revenue?" {
		t.Errorf("order wrong: first = %q", bundle.Messages[0].Content)
	}
	if last := bundle.Messages[2]; last.Content != "And Q4?" || last.Role != "user" {
		t.Errorf("incoming not last: %+v", last)
	}
}

func TestWindowTruncatesOversizedIncoming(t *testing.T) {
	w := NewWindow(&WindowConfig{RecentMessageCap: 500})
	incoming := &models.Message{Role: models.RoleUser, Content: strings.Repeat("x", 10000)}

	bundle := w.Build("system", nil, incoming, nil, time.Now())

	got := bundle.Messages[len(bundle.Messages)-1]
	if len(got.Content) > 500 {
		t.Errorf("incoming length = %d, exceeds cap 500", len(got.Content))
	}
	if !strings.HasSuffix(got.Content, truncationMarker) {
		t.Error("truncated message missing marker")
	}
	if bundle.Dropped != 0 {
		t.Error("incoming must be truncated, never dropped")
	}
}

func TestWindowDropsOldestFirstWithPlaceholder(t *testing.T) {
	w := NewWindow(&WindowConfig{
		MaxChars:         6000,
		RecentMessageCap: 2000,
		OlderMessageCap:  1000,
		RecentWindow:     2,
	})

	history := make([]*models.Message, 20)
	for i := range history {
		history[i] = &models.Message{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("turn-%02d ", i) + strings.Repeat("y", 1500),
		}
	}
	incoming := &models.Message{Role: models.RoleUser, Content: strings.Repeat("z", 1000)}

	bundle := w.Build("system", history, incoming, nil, time.Now())

	if bundle.Dropped == 0 {
		t.Fatal("expected history to be dropped")
	}
	if total := bundle.TotalChars(); total > 6000 {
		t.Errorf("total chars = %d, exceeds budget 6000", total)
	}

	first := bundle.Messages[0]
	if !strings.Contains(first.Content, "omitted to fit the context window") {
		t.Errorf("no placeholder turn, first = %q", first.Content)
	}
	if !strings.Contains(first.Content, fmt.Sprintf("%d earlier message", bundle.Dropped)) {
		t.Errorf("placeholder does not report dropped count: %q", first.Content)
	}

	// Kept turns must be the contiguous newest slice of history.
	kept := bundle.Messages[1 : len(bundle.Messages)-1]
	if len(kept) == 0 {
		t.Fatal("no history retained at all")
	}
	wantOldest := fmt.Sprintf("turn-%02d", 20-len(kept))
	if !strings.HasPrefix(kept[0].Content, wantOldest) {
		t.Errorf("oldest kept = %q, want prefix %q", kept[0].Content[:8], wantOldest)
	}
	if !strings.HasPrefix(kept[len(kept)-1].Content, "turn-19") {
		t.Errorf("newest history turn missing: %q", kept[len(kept)-1].Content[:8])
	}
}

func TestWindowOlderTurnsGetHarsherCap(t *testing.T) {
	w := NewWindow(&WindowConfig{
		MaxChars:         50000,
		RecentMessageCap: 4000,
		OlderMessageCap:  1000,
		RecentWindow:     2,
	})

	history := historyOf(
		strings.Repeat("a", 3000), // old, beyond recent window
		strings.Repeat("b", 3000), // newest history turn, inside window
	)
	incoming := &models.Message{Role: models.RoleUser, Content: "q"}

	bundle := w.Build("system", history, incoming, nil, time.Now())

	if len(bundle.Messages) != 3 {
		t.Fatalf("got %d messages", len(bundle.Messages))
	}
	if n := len(bundle.Messages[0].Content); n > 1000 {
		t.Errorf("older turn length = %d, want <= 1000", n)
	}
	if n := len(bundle.Messages[1].Content); n != 3000 {
		t.Errorf("recent turn length = %d, want untouched 3000", n)
	}
}

func TestWindowTotalStaysWithinSmallCap(t *testing.T) {
	// A total cap below the default per-message caps must still bound the
	// bundle: the caps clamp down rather than letting the never-dropped
	// incoming turn blow the budget.
	w := NewWindow(&WindowConfig{MaxChars: 1000})

	history := historyOf(strings.Repeat("h", 500))
	incoming := &models.Message{Role: models.RoleUser, Content: strings.Repeat("m", 3000)}

	bundle := w.Build("system", history, incoming, nil, time.Now())

	if total := bundle.TotalChars(); total > 1000 {
		t.Errorf("total chars = %d, exceeds configured cap 1000", total)
	}
	last := bundle.Messages[len(bundle.Messages)-1]
	if last.Role != "user" || !strings.HasSuffix(last.Content, truncationMarker) {
		t.Errorf("incoming turn not truncated in place: %+v", last)
	}

	// Degenerate caps are raised to the workable floor, not violated.
	w = NewWindow(&WindowConfig{MaxChars: 50})
	bundle = w.Build("system", history, incoming, nil, time.Now())
	if total := bundle.TotalChars(); total > minWindowChars {
		t.Errorf("total chars = %d, exceeds floor %d", total, minWindowChars)
	}
}

func TestWindowTruncationKeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("é", 400)
	for limit := len(truncationMarker) + 1; limit < len(truncationMarker)+9; limit++ {
		got := truncateString(s, limit)
		if !utf8.ValidString(got) {
			t.Errorf("limit %d: truncation produced invalid UTF-8: %q", limit, got)
		}
		if len(got) > limit {
			t.Errorf("limit %d: result length %d", limit, len(got))
		}
	}
	if got := truncateString("short", 100); got != "short" {
		t.Errorf("short string modified: %q", got)
	}
}

func TestWindowKnowledgeBlock(t *testing.T) {
	w := NewWindow(&WindowConfig{MaxKnowledgeChars: 100})
	incoming := &models.Message{Role: models.RoleUser, Content: "q"}

	kctx := &knowledge.Context{Summary: strings.Repeat("k", 500)}
	bundle := w.Build("system", nil, incoming, kctx, time.Now())
	if len(bundle.Knowledge) > 100+len(truncationMarker) {
		t.Errorf("knowledge length = %d", len(bundle.Knowledge))
	}

	// Absent knowledge context leaves the block empty.
	bundle = w.Build("system", nil, incoming, nil, time.Now())
	if bundle.Knowledge != "" {
		t.Errorf("knowledge = %q, want empty", bundle.Knowledge)
	}
}

func TestWindowCacheEpoch(t *testing.T) {
	w := NewWindow(&WindowConfig{EpochLength: 5 * time.Minute})
	incoming := &models.Message{Role: models.RoleUser, Content: "q"}

	base := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	a := w.Build("s", nil, incoming, nil, base)
	b := w.Build("s", nil, incoming, nil, base.Add(2*time.Minute))
	c := w.Build("s", nil, incoming, nil, base.Add(10*time.Minute))

	if a.CacheEpoch != b.CacheEpoch {
		t.Errorf("same window epochs differ: %d vs %d", a.CacheEpoch, b.CacheEpoch)
	}
	if a.CacheEpoch == c.CacheEpoch {
		t.Error("distinct windows share epoch")
	}
}
