package downloads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// DefaultMaxJobs bounds concurrently tracked download jobs
const DefaultMaxJobs = 5

// ErrTooManyDownloads is returned when the store already holds the maximum number of jobs
var ErrTooManyDownloads = errors.New("too many downloads in progress")

// ErrDownloadNotFound is returned when closing a URL with neither a live job nor a record
var ErrDownloadNotFound = errors.New("download not found")

// Manager creates, rehydrates and closes download jobs against one registry
type Manager struct {
	mu       sync.Mutex
	registry *Registry
	mount    Mount
	deps     *jobDeps
	maxJobs  int
	jobs     map[string]*Job
}

// Option configures a Manager
type Option func(*Manager)

// WithMaxJobs overrides the concurrent job limit
func WithMaxJobs(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxJobs = n
		}
	}
}

// WithPollInterval overrides the delay between status requests
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.deps.interval = d
		}
	}
}

// WithObserver reports poll outcomes and active job counts
func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		if observer != nil {
			m.deps.observer = observer
		}
	}
}

// WithClock overrides the time source used for new job timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.deps.now = now
	}
}

// WithRegistry shares an existing registry handle
func WithRegistry(registry *Registry) Option {
	return func(m *Manager) {
		m.registry = registry
	}
}

// NewManager creates a download manager
func NewManager(store *Store, checker StatusChecker, mount Mount, logger arbor.ILogger, opts ...Option) *Manager {
	m := &Manager{
		mount:   mount,
		maxJobs: DefaultMaxJobs,
		jobs:    make(map[string]*Job),
		deps: &jobDeps{
			store:    store,
			checker:  checker,
			logger:   logger,
			observer: noopObserver{},
			interval: DefaultPollInterval,
			now:      time.Now,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry(logger)
	}
	return m
}

// Registry returns the registry handle jobs register with
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Download starts tracking sourceURL. Creation is refused before any job is built
// when the store already holds the maximum number of records. A job already tracked
// for the URL is returned as is. A newly built job is initialized when force is set
// or when no record exists for it yet.
func (m *Manager) Download(ctx context.Context, sourceURL string, force bool) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.deps.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) >= m.maxJobs {
		m.deps.logger.Warn().Int("max_jobs", m.maxJobs).Str("url", sourceURL).Msg("Download refused, too many downloads in progress")
		return nil, ErrTooManyDownloads
	}

	return m.createLocked(ctx, sourceURL, force)
}

func (m *Manager) createLocked(ctx context.Context, sourceURL string, force bool) (*Job, error) {
	if job, ok := m.jobs[sourceURL]; ok {
		return job, nil
	}

	job, err := newJob(ctx, sourceURL, m.deps)
	if err != nil {
		return nil, err
	}
	if !force && job.Existing() {
		return job, nil
	}

	job.onClose = m.forget
	m.jobs[sourceURL] = job
	if err := job.Init(ctx, m.registry.GetOrCreate(m.mount)); err != nil {
		delete(m.jobs, sourceURL)
		return nil, fmt.Errorf("failed to initialize download: %w", err)
	}

	m.deps.observer.SetActiveDownloads(len(m.jobs))
	m.deps.logger.Info().
		Str("url", sourceURL).
		Str("filename", job.Filename()).
		Bool("complete", job.Complete()).
		Msg("Download tracked")
	return job, nil
}

// Hydrate rebuilds a job for every stored record. Stored records are already counted
// against the limit, so rehydration does not apply the creation guard.
func (m *Manager) Hydrate(ctx context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.deps.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(keys))
	for _, key := range keys {
		job, err := m.createLocked(ctx, SourceURL(key), true)
		if err != nil {
			m.deps.logger.Warn().Err(err).Str("key", key).Msg("Failed to rehydrate download")
			continue
		}
		jobs = append(jobs, job)
	}

	m.deps.logger.Info().Int("count", len(jobs)).Msg("Rehydrated downloads")
	return jobs, nil
}

// Close closes the job for sourceURL. A stored record without a live job is removed.
func (m *Manager) Close(ctx context.Context, sourceURL string) error {
	m.mu.Lock()
	job, ok := m.jobs[sourceURL]
	m.mu.Unlock()

	if ok {
		return job.Close(ctx)
	}

	if _, exists := m.deps.store.Read(ctx, Key(sourceURL)); !exists {
		return ErrDownloadNotFound
	}
	return m.deps.store.Remove(ctx, Key(sourceURL))
}

// Get returns the live job for sourceURL
func (m *Manager) Get(sourceURL string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[sourceURL]
	return job, ok
}

// List returns the view models of all live jobs ordered by key
func (m *Manager) List() []Item {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	items := make([]Item, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, job.Item())
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Key < items[b].Key })
	return items
}

// Shutdown suspends every live job, leaving records in place for the next Hydrate
func (m *Manager) Shutdown() {
	m.mu.Lock()
	jobs := m.jobs
	m.jobs = make(map[string]*Job)
	m.mu.Unlock()

	for _, job := range jobs {
		job.Suspend()
	}
	m.registry.Reset()
	m.deps.observer.SetActiveDownloads(0)
	m.deps.logger.Info().Int("count", len(jobs)).Msg("Suspended downloads")
}

func (m *Manager) forget(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[job.URL()] == job {
		delete(m.jobs, job.URL())
	}
	m.deps.observer.SetActiveDownloads(len(m.jobs))
}
