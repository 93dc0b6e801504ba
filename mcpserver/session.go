package mcpserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session tracks one initialized MCP client connection (spec §6, supplemented
// by original_source/ccos/src/capabilities/mcp_session_handler.rs's session
// lifecycle), gating tools/call and GET /mcp after initialize.
type session struct {
	id           string
	createdAt    time.Time
	lastActivity time.Time
}

// sessionStore is an in-memory registry of live sessions with inactivity
// eviction, keyed by Mcp-Session-Id. The teacher's session handler keeps a
// capability_id → session map (one session per downstream MCP server); here
// the substrate is itself the MCP server, so sessions key directly on the
// id handed out at initialize.
type sessionStore struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]*session
}

func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &sessionStore{ttl: ttl, m: make(map[string]*session)}
}

func (s *sessionStore) create(now time.Time) *session {
	sess := &session{id: uuid.NewString(), createdAt: now, lastActivity: now}
	s.mu.Lock()
	s.m[sess.id] = sess
	s.mu.Unlock()
	return sess
}

// touch validates id is a live, non-expired session and bumps its activity
// clock. Returns false if the session is unknown or has been evicted.
func (s *sessionStore) touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return false
	}
	if now.Sub(sess.lastActivity) > s.ttl {
		delete(s.m, id)
		return false
	}
	sess.lastActivity = now
	return true
}

func (s *sessionStore) terminate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return false
	}
	delete(s.m, id)
	return true
}

// evictExpired removes sessions whose last activity predates now-ttl, for a
// background sweep. Returns the number evicted.
func (s *sessionStore) evictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.m {
		if now.Sub(sess.lastActivity) > s.ttl {
			delete(s.m, id)
			n++
		}
	}
	return n
}
