package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxConversations bounds the store before LRU eviction kicks in.
const DefaultMaxConversations = 10000

// ErrNotFound indicates the conversation id has never been seen.
// GetOrCreate never returns it; read-only queries do.
var errNotFound = fmt.Errorf("conversation not found")

// IsNotFound reports whether err is the store's not-found error.
func IsNotFound(err error) bool { return err == errNotFound }

// Store keeps conversations in memory, keyed by id.
//
// The map lock guards only map access; each conversation carries its
// own mutex, so appends on distinct conversations proceed in parallel.
// Conversations are destroyed only by explicit eviction (EvictBefore or
// the capacity bound), never implicitly.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	maxSize int
	onEvict func(id string)
	logger  *slog.Logger
	now     func() time.Time // injectable clock for tests
}

type entry struct {
	mu           sync.Mutex
	id           string
	userID       string
	createdAt    time.Time
	lastActivity time.Time
	messages     []Message
}

// Config configures a Store.
type Config struct {
	// MaxConversations caps stored conversations; the least recently
	// active one is evicted when a new conversation would exceed it.
	// Zero means DefaultMaxConversations.
	MaxConversations int

	// OnEvict runs once per conversation destroyed by either eviction
	// policy, with the dead conversation's id. State keyed by the same
	// id elsewhere (the call trace) hooks in here. May be nil. It is
	// invoked outside the store's locks.
	OnEvict func(id string)

	// Logger for eviction events. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	maxSize := cfg.MaxConversations
	if maxSize <= 0 {
		maxSize = DefaultMaxConversations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		onEvict: cfg.OnEvict,
		logger:  logger,
		now:     time.Now,
	}
}

// GetOrCreate returns the conversation under id, creating it if absent.
// An empty id mints a fresh uuid. Creation is idempotent: an unknown id
// yields a new empty conversation under that id, never an error.
func (s *Store) GetOrCreate(id, userID string) Info {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	var evicted []string
	e, ok := s.entries[id]
	if !ok {
		now := s.now()
		e = &entry{
			id:           id,
			userID:       userID,
			createdAt:    now,
			lastActivity: now,
		}
		s.entries[id] = e
		evicted = s.evictOverCapacityLocked(id)
	}
	s.mu.Unlock()
	s.notifyEvicted(evicted)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.infoLocked()
}

// Append atomically adds msgs to the conversation in the given order,
// assigning consecutive ordinals and timestamps. The conversation is
// created if absent. Append is the only mutation path, and a whole
// batch lands under one lock acquisition: concurrent appenders can
// never interleave inside a batch.
func (s *Store) Append(id string, msgs ...Message) error {
	if id == "" {
		return fmt.Errorf("appending messages: conversation id is required")
	}
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	var evicted []string
	e, ok := s.entries[id]
	if !ok {
		now := s.now()
		e = &entry{id: id, createdAt: now, lastActivity: now}
		s.entries[id] = e
		evicted = s.evictOverCapacityLocked(id)
	}
	s.mu.Unlock()
	s.notifyEvicted(evicted)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	base := len(e.messages)
	for i, msg := range msgs {
		msg.Ordinal = base + i
		msg.Timestamp = now
		e.messages = append(e.messages, msg)
	}
	e.lastActivity = now
	return nil
}

// History returns the trailing window of at most limit messages, in
// arrival order. limit <= 0 returns the full history. Unknown ids
// yield an empty window: a fresh conversation has no history yet.
func (s *Store) History(id string, limit int) []Message {
	e := s.lookup(id)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := e.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Messages returns the complete history for audit and display. It
// never mutates state. Unknown ids return IsNotFound errors.
func (s *Store) Messages(id string) ([]Message, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, errNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out, nil
}

// Info returns conversation metadata, or IsNotFound error.
func (s *Store) Info(id string) (Info, error) {
	e := s.lookup(id)
	if e == nil {
		return Info{}, errNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.infoLocked(), nil
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictBefore removes every conversation whose last activity predates
// cutoff and reports how many were destroyed. This is the explicit
// time-based eviction policy; nothing else removes conversations.
func (s *Store) EvictBefore(cutoff time.Time) int {
	s.mu.Lock()
	var evicted []string
	for id, e := range s.entries {
		e.mu.Lock()
		stale := e.lastActivity.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.logger.Debug("evicted stale conversations", "count", len(evicted))
	}
	s.notifyEvicted(evicted)
	return len(evicted)
}

// evictOverCapacityLocked drops the least recently active conversation
// while the store exceeds its capacity, returning the destroyed ids.
// Caller holds s.mu and must run notifyEvicted on the result after
// unlocking. The freshly inserted id is exempt so a new conversation
// never evicts itself.
func (s *Store) evictOverCapacityLocked(keep string) []string {
	var evicted []string
	for len(s.entries) > s.maxSize {
		var oldestID string
		var oldest time.Time
		for id, e := range s.entries {
			if id == keep {
				continue
			}
			e.mu.Lock()
			last := e.lastActivity
			e.mu.Unlock()
			if oldestID == "" || last.Before(oldest) {
				oldestID = id
				oldest = last
			}
		}
		if oldestID == "" {
			return evicted
		}
		delete(s.entries, oldestID)
		evicted = append(evicted, oldestID)
		s.logger.Debug("evicted conversation over capacity", "id", oldestID)
	}
	return evicted
}

// notifyEvicted fires the eviction callback for each destroyed id. The
// caller must not hold s.mu: the callback may take arbitrary locks.
func (s *Store) notifyEvicted(ids []string) {
	if s.onEvict == nil {
		return
	}
	for _, id := range ids {
		s.onEvict(id)
	}
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// infoLocked snapshots metadata. Caller holds e.mu.
func (e *entry) infoLocked() Info {
	return Info{
		ID:           e.id,
		UserID:       e.userID,
		CreatedAt:    e.createdAt,
		LastActivity: e.lastActivity,
		MessageCount: len(e.messages),
	}
}
