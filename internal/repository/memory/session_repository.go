package memory

import (
	"time"

	"literas-be/pkg/research/session"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps live and recently finished sessions so their
// snapshots can be served without touching the database.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *SessionRepository) Save(s *session.Session) {
	r.cache.Set(s.ID().String(), s, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(id uuid.UUID) (*session.Session, bool) {
	if x, found := r.cache.Get(id.String()); found {
		return x.(*session.Session), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(id uuid.UUID) {
	r.cache.Delete(id.String())
}

// List returns every cached session in no particular order.
func (r *SessionRepository) List() []*session.Session {
	items := r.cache.Items()
	out := make([]*session.Session, 0, len(items))
	for _, item := range items {
		if s, ok := item.Object.(*session.Session); ok {
			out = append(out, s)
		}
	}
	return out
}
