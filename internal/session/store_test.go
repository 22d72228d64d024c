package session

import (
	"strings"
	"testing"
	"time"
)

func newTestStore() *Store {
	return NewStore(10, 2*time.Hour, nil)
}

func TestGetOrCreateGeneratesID(t *testing.T) {
	s := newTestStore()

	id := s.GetOrCreate("")
	if id == "" {
		t.Fatal("expected a generated session id")
	}
	if got := s.GetOrCreate("  "); got == id {
		t.Error("blank ids should yield distinct sessions")
	}

	if got := s.GetOrCreate("fixed"); got != "fixed" {
		t.Errorf("GetOrCreate(fixed) = %q", got)
	}
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore()

	s.Append("s1", RoleUser, "北京今天穿什么")
	snap := s.Append("s1", RoleAssistant, "建议穿外套")

	if len(snap.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Role != RoleUser || snap.Messages[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %q, %q", snap.Messages[0].Role, snap.Messages[1].Role)
	}
	if snap.Messages[0].Timestamp.IsZero() {
		t.Error("message timestamp not set")
	}
	if snap.Summary != "" {
		t.Errorf("summary should be empty below the threshold, got %q", snap.Summary)
	}

	got, ok := s.Get("s1")
	if !ok {
		t.Fatal("Get(s1) miss")
	}
	if len(got.Messages) != 2 {
		t.Errorf("Get: len(Messages) = %d, want 2", len(got.Messages))
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore()

	snap := s.Append("s1", RoleUser, "hello")
	snap.Messages[0].Content = "mutated"

	got, _ := s.Get("s1")
	if got.Messages[0].Content != "hello" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestSummarizeOnEleventhMessage(t *testing.T) {
	s := newTestStore()

	for i := 0; i < 10; i++ {
		snap := s.Append("s1", RoleUser, "消息内容")
		if snap.Summary != "" {
			t.Fatalf("summary appeared after %d messages", i+1)
		}
	}

	snap := s.Append("s1", RoleAssistant, "第十一条")
	if len(snap.Messages) != 10 {
		t.Errorf("len(Messages) = %d, want 10 after folding", len(snap.Messages))
	}
	if snap.Summary == "" {
		t.Fatal("summary should be non-empty after the 11th message")
	}
	if !strings.HasPrefix(snap.Summary, RoleUser+": ") {
		t.Errorf("summary %q should start with the oldest folded message", snap.Summary)
	}
	// Newest message survived the fold.
	if got := snap.Messages[len(snap.Messages)-1].Content; got != "第十一条" {
		t.Errorf("last message = %q", got)
	}
}

func TestSummaryClipsLongMessages(t *testing.T) {
	s := newTestStore()

	long := strings.Repeat("长", 300)
	s.Append("s1", RoleUser, long)
	for i := 0; i < 10; i++ {
		s.Append("s1", RoleAssistant, "ok")
	}

	snap, _ := s.Get("s1")
	if !strings.Contains(snap.Summary, "...") {
		t.Errorf("folded long message should be clipped, summary = %q", snap.Summary)
	}
	if strings.Contains(snap.Summary, long) {
		t.Error("summary contains the unclipped message")
	}
}

func TestSummaryStopsNearCap(t *testing.T) {
	s := NewStore(2, 2*time.Hour, nil)

	chunk := strings.Repeat("x", 150)
	for i := 0; i < 20; i++ {
		s.Append("s1", RoleUser, chunk)
	}

	snap, _ := s.Get("s1")
	// Folding stops after the segment that crosses the cap, so the
	// summary is bounded by the cap plus one clipped segment.
	if n := len([]rune(snap.Summary)); n > summaryMaxChars+clipChars+len(RoleUser)+8 {
		t.Errorf("summary length %d exceeds the fold bound", n)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := NewStore(10, 2*time.Hour, nil)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Append("s1", RoleUser, "hello")

	s.now = func() time.Time { return base.Add(2*time.Hour + time.Minute) }
	if _, ok := s.Get("s1"); ok {
		t.Error("session should have expired")
	}

	// Same id after expiry starts fresh.
	snap := s.Append("s1", RoleUser, "again")
	if len(snap.Messages) != 1 {
		t.Errorf("recreated session has %d messages, want 1", len(snap.Messages))
	}
}

func TestTTLRefreshOnAccess(t *testing.T) {
	s := NewStore(10, 2*time.Hour, nil)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Append("s1", RoleUser, "hello")

	s.now = func() time.Time { return base.Add(90 * time.Minute) }
	if _, ok := s.Get("s1"); !ok {
		t.Fatal("session expired too early")
	}

	// The Get above refreshed lastAccess.
	s.now = func() time.Time { return base.Add(3 * time.Hour) }
	if _, ok := s.Get("s1"); !ok {
		t.Error("access should have extended the session lifetime")
	}
}
