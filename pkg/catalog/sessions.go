package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/repository"
)

var ErrSessionsClosed = errors.New("sessions closed")

// Sessions keeps one View per browser session. Views idle for longer than
// the ttl, or pushed out by newer sessions, are closed.
type Sessions struct {
	ctx        context.Context
	collection repository.CollectionRepository
	cfg        ViewConfig
	ttl        time.Duration
	mu         sync.Mutex
	closed     bool
	views      *expirable.LRU[string, *View]
}

func NewSessions(ctx context.Context, collection repository.CollectionRepository, cfg ViewConfig, size int, ttl time.Duration) *Sessions {
	if size <= 0 {
		size = 1024
	}
	return &Sessions{
		ctx:        ctx,
		collection: collection,
		cfg:        cfg,
		ttl:        ttl,
		views: expirable.NewLRU[string, *View](size, func(id string, v *View) {
			log.Debug().Str("session_id", id).Msg("closing session view")
			v.Close()
		}, ttl),
	}
}

// Get returns the view for id, creating it on first use. Each access resets
// the idle timer.
func (s *Sessions) Get(id string) (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionsClosed
	}
	if v, ok := s.views.Get(id); ok {
		s.views.Add(id, v)
		return v, nil
	}
	// an expired entry not yet swept still needs its view closed
	s.views.Remove(id)

	v, err := NewView(s.ctx, s.collection, s.cfg)
	if err != nil {
		return nil, err
	}
	s.views.Add(id, v)
	return v, nil
}

// Peek returns the view for id without creating it or touching its timer.
func (s *Sessions) Peek(id string) (*View, bool) {
	return s.views.Peek(id)
}

// Remove closes and forgets the view for id.
func (s *Sessions) Remove(id string) {
	s.views.Remove(id)
}

func (s *Sessions) Len() int {
	return s.views.Len()
}

// TTL is how long a view may sit idle before it is closed. Zero means never.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Close closes every view and waits for the writes they issued. No view is
// created afterwards.
func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	views := s.views.Values()
	s.views.Purge()
	s.mu.Unlock()

	for _, v := range views {
		v.Wait()
	}
}
