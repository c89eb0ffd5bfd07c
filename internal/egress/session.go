package egress

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// sessionCleanupInterval is how often expired sessions are swept out.
const sessionCleanupInterval = 10 * time.Minute

// Session tracks the traffic one source has pushed through one egress
// point. A session stays alive while the pair keeps seeing requests
// and expires after the configured TTL of inactivity.
type Session struct {
	ID           string        `json:"id"`
	EgressID     string        `json:"egress_id"`
	Source       string        `json:"source"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	Requests     int           `json:"requests"`
	Successes    int           `json:"successes"`
	Bytes        int64         `json:"bytes"`
	TotalTime    time.Duration `json:"total_time"`
}

// sessionStore keeps sessions keyed by (egress id, source) with TTL
// expiry handled by the cache janitor. Mutation happens under the
// manager lock, so sessions need no locking of their own.
type sessionStore struct {
	cache *cache.Cache
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{cache: cache.New(ttl, sessionCleanupInterval)}
}

func sessionKey(egressID, source string) string {
	return egressID + "|" + source
}

// open returns the live session for the pair, creating one when none
// exists.
func (s *sessionStore) open(egressID, source string) *Session {
	key := sessionKey(egressID, source)
	if v, ok := s.cache.Get(key); ok {
		return v.(*Session)
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.New().String(),
		EgressID:     egressID,
		Source:       source,
		StartedAt:    now,
		LastActivity: now,
	}
	s.cache.Set(key, session, cache.DefaultExpiration)
	return session
}

// record folds one request outcome into the pair's session, if one is
// live, and refreshes its expiry.
func (s *sessionStore) record(egressID, source string, success bool, responseTime time.Duration, bytes int64) {
	key := sessionKey(egressID, source)
	v, ok := s.cache.Get(key)
	if !ok {
		return
	}

	session := v.(*Session)
	session.Requests++
	if success {
		session.Successes++
	}
	session.Bytes += bytes
	session.TotalTime += responseTime
	session.LastActivity = time.Now()
	s.cache.Set(key, session, cache.DefaultExpiration)
}

// active returns all live sessions.
func (s *sessionStore) active() []*Session {
	items := s.cache.Items()
	out := make([]*Session, 0, len(items))
	for _, item := range items {
		if session, ok := item.Object.(*Session); ok {
			out = append(out, session)
		}
	}
	return out
}

// count returns the number of live sessions.
func (s *sessionStore) count() int {
	return s.cache.ItemCount()
}
