package tables

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/ternarybob/arbor"
)

// DefaultSessionTTL is how long an idle table session keeps its cursors and panel
const DefaultSessionTTL = 30 * time.Minute

// Sessions caches one lazily initialized controller per browser session and table.
// Entries expire after ttl without use.
type Sessions struct {
	mu      sync.Mutex
	cache   *ristretto.Cache[string, *Lazy]
	catalog *Catalog
	fetcher Fetcher
	ttl     time.Duration
	logger  arbor.ILogger
	opts    []Option
}

// NewSessions creates the session cache
func NewSessions(catalog *Catalog, fetcher Fetcher, ttl time.Duration, logger arbor.ILogger, opts ...Option) (*Sessions, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *Lazy]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	return &Sessions{
		cache:   cache,
		catalog: catalog,
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
		opts:    opts,
	}, nil
}

// Catalog returns the table definitions
func (s *Sessions) Catalog() *Catalog {
	return s.catalog
}

// Lookup returns the lazy controller for (sessionID, table), creating it if absent.
// Each lookup extends the entry's lifetime.
func (s *Sessions) Lookup(sessionID, table string) (*Lazy, error) {
	def, err := s.catalog.Get(table)
	if err != nil {
		return nil, err
	}

	key := sessionID + "/" + table

	s.mu.Lock()
	defer s.mu.Unlock()

	lazy, ok := s.cache.Get(key)
	if !ok {
		session := NewSession(sessionID, table)
		lazy = NewLazy(func() (*Controller, error) {
			return Initialize(def, s.fetcher, session, Callbacks{}, s.logger, s.opts...)
		})
		s.logger.Debug().Str("session", sessionID).Str("table", table).Msg("Table session created")
	}

	s.cache.SetWithTTL(key, lazy, 1, s.ttl)
	s.cache.Wait()
	return lazy, nil
}

// Controller returns the initialized controller for (sessionID, table)
func (s *Sessions) Controller(sessionID, table string) (*Controller, error) {
	lazy, err := s.Lookup(sessionID, table)
	if err != nil {
		return nil, err
	}
	return lazy.Show()
}

// Close releases the cache
func (s *Sessions) Close() {
	s.cache.Close()
}
