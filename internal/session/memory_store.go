package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps conversation history in process memory. Sessions are
// independent: the outer mutex only guards the map itself, while each entry
// carries its own lock so appends for one key never block other keys.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	maxTurns int
}

type memorySession struct {
	mu    sync.Mutex
	turns []Turn
}

// NewMemoryStore creates a store bounding every session at maxTurns turns.
// Caps below one turn pair fall back to DefaultMaxTurns.
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		maxTurns: normalizeCap(maxTurns),
	}
}

// GetOrCreate returns the history snapshot for a known key, or mints a fresh
// key with empty history. The entry itself is only materialized on the first
// successful Append, so failed runs leave nothing behind.
func (m *MemoryStore) GetOrCreate(_ context.Context, key string) (string, []Turn, error) {
	key = strings.TrimSpace(key)
	if key != "" {
		m.mu.RLock()
		entry, ok := m.sessions[key]
		m.mu.RUnlock()
		if ok {
			return key, entry.snapshot(), nil
		}
	}
	return uuid.NewString(), nil, nil
}

// Append atomically records the user/assistant turn pair for key, evicting
// the oldest turns once the cap is exceeded, and returns the new snapshot.
func (m *MemoryStore) Append(_ context.Context, key, userText, assistantText string) ([]Turn, error) {
	if strings.TrimSpace(userText) == "" || strings.TrimSpace(assistantText) == "" {
		return nil, ErrEmptyTurn
	}

	m.mu.Lock()
	entry, ok := m.sessions[key]
	if !ok {
		entry = &memorySession{}
		m.sessions[key] = entry
	}
	m.mu.Unlock()

	now := time.Now().Unix()
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.turns = append(entry.turns,
		Turn{Role: RoleUser, Text: userText, CreatedAt: now},
		Turn{Role: RoleAssistant, Text: assistantText, CreatedAt: now},
	)
	if overflow := len(entry.turns) - m.maxTurns; overflow > 0 {
		entry.turns = append([]Turn(nil), entry.turns[overflow:]...)
	}
	return entry.snapshotLocked(), nil
}

// Close implements Store. There is nothing to release.
func (m *MemoryStore) Close() error {
	return nil
}

// Len reports the number of turns stored for key. Used by tests and the
// metrics endpoint; absent keys report zero.
func (m *MemoryStore) Len(key string) int {
	m.mu.RLock()
	entry, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.turns)
}

func (s *memorySession) snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *memorySession) snapshotLocked() []Turn {
	if len(s.turns) == 0 {
		return nil
	}
	clone := make([]Turn, len(s.turns))
	copy(clone, s.turns)
	return clone
}
