// Package session holds per-conversation message history for the agent
// loop. Sessions live in memory only: history survives across turns but
// not across process restarts. Each session carries an ordered message
// list, a rolling summary fed by size-triggered folding, and a
// last-access time used for lazy expiry.
//
// Access is serialized per session id. Concurrent turns on different
// sessions proceed in parallel; concurrent turns on the same session are
// unsupported (they will not corrupt state, but their interleaving is
// unspecified).
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Summarization limits, matching the conversation-folding behavior the
// prompt builder depends on.
const (
	// clipChars bounds one folded message's contribution to the summary.
	clipChars = 160
	// summaryMaxChars stops folding once the summary reaches this size.
	summaryMaxChars = 800
)

// Message is one immutable conversation entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a point-in-time snapshot of one conversation. Mutation
// happens only through the Store; snapshots are safe to retain.
type Session struct {
	ID         string    `json:"sessionId"`
	Messages   []Message `json:"messages"`
	Summary    string    `json:"summary,omitempty"`
	LastAccess time.Time `json:"lastAccess"`
}

// entry is the live, store-owned state of one session.
type entry struct {
	mu         sync.Mutex
	messages   []Message
	summary    string
	lastAccess time.Time
}

// Store is a concurrent keyed session collection with lazy TTL expiry
// and size-triggered summarization.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	maxMessages int
	ttl         time.Duration
	logger      *slog.Logger

	// now is replaceable for expiry tests.
	now func() time.Time
}

// NewStore creates a session store. maxMessages is the raw-message
// retention threshold (default 10); ttl expires untouched sessions
// (default 2h).
func NewStore(maxMessages int, ttl time.Duration, logger *slog.Logger) *Store {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:    make(map[string]*entry),
		maxMessages: maxMessages,
		ttl:         ttl,
		logger:      logger.With("component", "session"),
		now:         time.Now,
	}
}

// GetOrCreate returns the session id to use for a turn. A blank id
// yields a fresh generated session; an expired id is swept and
// recreated under the same id.
func (s *Store) GetOrCreate(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	e := s.entryFor(id, true)
	e.mu.Lock()
	e.lastAccess = s.now()
	e.mu.Unlock()
	return id
}

// Get returns a snapshot of a session, or false when the id is unknown
// or the session has expired. A hit refreshes the last-access time.
func (s *Store) Get(id string) (Session, bool) {
	e := s.entryFor(id, false)
	if e == nil {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = s.now()
	return s.snapshotLocked(id, e), true
}

// Append adds one message to a session, creating it if needed, and
// folds history into the summary when the raw count crosses the
// threshold.
func (s *Store) Append(id, role, content string) Session {
	e := s.entryFor(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = append(e.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	e.lastAccess = s.now()
	s.summarizeLocked(id, e)
	return s.snapshotLocked(id, e)
}

// entryFor resolves the live entry for id, sweeping it first if it has
// expired. When create is false a miss returns nil.
func (s *Store) entryFor(id string, create bool) *entry {
	if strings.TrimSpace(id) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if ok && s.expired(e) {
		delete(s.sessions, id)
		s.logger.Debug("session expired", "session", id)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &entry{lastAccess: s.now()}
		s.sessions[id] = e
	}
	return e
}

// expired reads lastAccess under the entry lock; callers hold s.mu so
// the entry cannot be swept concurrently.
func (s *Store) expired(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccess.Add(s.ttl).Before(s.now())
}

// summarizeLocked folds the oldest messages into the rolling summary
// once the raw list exceeds maxMessages, keeping only the most recent
// maxMessages entries. Caller holds e.mu.
func (s *Store) summarizeLocked(id string, e *entry) {
	if len(e.messages) <= s.maxMessages {
		return
	}

	keepFrom := len(e.messages) - s.maxMessages
	folded := e.messages[:keepFrom]

	var b strings.Builder
	for _, m := range folded {
		if b.Len() > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(clip(m.Content, clipChars))
		if b.Len() > summaryMaxChars {
			break
		}
	}
	e.summary = b.String()
	e.messages = append([]Message(nil), e.messages[keepFrom:]...)

	s.logger.Debug("session summarized",
		"session", id,
		"folded", len(folded),
		"kept", len(e.messages),
	)
}

func (s *Store) snapshotLocked(id string, e *entry) Session {
	return Session{
		ID:         id,
		Messages:   append([]Message(nil), e.messages...),
		Summary:    e.summary,
		LastAccess: e.lastAccess,
	}
}

// clip truncates a string to max runes, appending an ellipsis marker
// when anything was cut.
func clip(v string, max int) string {
	runes := []rune(v)
	if len(runes) <= max {
		return v
	}
	return string(runes[:max]) + "..."
}
