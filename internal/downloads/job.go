package downloads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/common"
)

// DefaultPollInterval is the delay between status requests for a pending job
const DefaultPollInterval = 5 * time.Second

// Observer receives job activity, typically for metrics
type Observer interface {
	ObservePoll(outcome string)
	SetActiveDownloads(n int)
}

type noopObserver struct{}

func (noopObserver) ObservePoll(string) {}
func (noopObserver) SetActiveDownloads(int) {}

// jobDeps is shared by every job a Manager creates
type jobDeps struct {
	store    *Store
	checker  StatusChecker
	logger   arbor.ILogger
	observer Observer
	interval time.Duration
	now      func() time.Time
}

// Job polls the status endpoint for one source URL until the file is ready or the
// job is closed. A job holds at most one outstanding request and one pending timer.
type Job struct {
	mu sync.Mutex

	url       string
	key       string
	apiURL    string
	resource  string
	filename  string
	timestamp string

	downloadURL string
	existing    bool

	container *Container
	deps      *jobDeps
	onClose   func(*Job)

	cancel      context.CancelFunc
	timer       *time.Timer
	generation  uint64
	initialized bool
	closed      bool
}

func newJob(ctx context.Context, sourceURL string, deps *jobDeps) (*Job, error) {
	apiURL, resource, err := urlParts(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download url %q: %w", sourceURL, err)
	}

	key := Key(sourceURL)
	record, existing := deps.store.Read(ctx, key)

	timestamp := record.Timestamp
	if timestamp == "" {
		timestamp = deps.now().Format(TimestampLayout)
	}

	job := &Job{
		url:       sourceURL,
		key:       key,
		apiURL:    apiURL,
		resource:  resource,
		filename:  resource + "-" + timestamp + ".zip",
		timestamp: timestamp,
		existing:  existing,
		deps:      deps,
	}
	if record.Complete() {
		job.downloadURL = *record.DownloadURL
	}
	return job, nil
}

// URL returns the source URL the job was created for
func (j *Job) URL() string { return j.url }

// Key returns the job's store key
func (j *Job) Key() string { return j.key }

// APIURL returns the status endpoint URL
func (j *Job) APIURL() string { return j.apiURL }

// Filename returns the name requested from the backend
func (j *Job) Filename() string { return j.filename }

// Existing reports whether a record was already stored when the job was built
func (j *Job) Existing() bool { return j.existing }

// Complete reports whether the download URL is known
func (j *Job) Complete() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.downloadURL != ""
}

// Item returns the job's view model
func (j *Job) Item() Item {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.itemLocked()
}

func (j *Job) itemLocked() Item {
	return Item{
		Key:         j.key,
		URL:         j.url,
		APIURL:      j.apiURL,
		Resource:    j.resource,
		Filename:    j.filename,
		Timestamp:   j.timestamp,
		DownloadURL: j.downloadURL,
	}
}

func (j *Job) recordLocked() Record {
	record := Record{Key: j.key, Timestamp: j.timestamp}
	if j.downloadURL != "" {
		downloadURL := j.downloadURL
		record.DownloadURL = &downloadURL
	}
	return record
}

// Init renders the job into container, which already counts it (see GetOrCreate), and
// unless the file is already known persists the pending record and issues the first
// status request.
func (j *Job) Init(ctx context.Context, container *Container) error {
	j.mu.Lock()
	if j.closed || j.initialized {
		j.mu.Unlock()
		container.Subtract()
		return nil
	}
	j.initialized = true
	j.container = container
	item := j.itemLocked()
	record := j.recordLocked()
	j.mu.Unlock()

	container.put(item)

	if item.Complete() {
		return nil
	}

	if err := j.deps.store.Write(ctx, j.key, record); err != nil {
		j.mu.Lock()
		j.closed = true
		j.mu.Unlock()
		container.remove(j.key)
		container.Subtract()
		return err
	}
	j.Refresh()
	return nil
}

// Refresh issues one asynchronous status request. It is a no-op while a request is
// outstanding, once the job is complete, or after the job is closed.
func (j *Job) Refresh() {
	j.mu.Lock()
	if j.closed || j.cancel != nil || j.downloadURL != "" {
		j.mu.Unlock()
		return
	}
	j.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	generation := j.generation
	j.mu.Unlock()

	common.SafeGo(j.deps.logger, "downloadPoll", func() {
		j.poll(ctx, cancel, generation)
	})
}

func (j *Job) poll(ctx context.Context, cancel context.CancelFunc, generation uint64) {
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			j.deps.logger.Error().
				Str("url", j.url).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Download status request panicked, retrying")
			j.deps.observer.ObservePoll("error")

			j.mu.Lock()
			defer j.mu.Unlock()
			if generation == j.generation {
				j.cancel = nil
				j.scheduleLocked()
			}
		}
	}()

	status, err := j.deps.checker.CheckStatus(ctx, j.apiURL, j.filename)

	j.mu.Lock()
	defer j.mu.Unlock()

	// Closed or suspended while the request was in flight
	if generation != j.generation {
		j.deps.observer.ObservePoll("cancelled")
		return
	}
	j.cancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			j.deps.observer.ObservePoll("cancelled")
			return
		}
		j.deps.logger.Warn().Err(err).Str("url", j.url).Msg("Download status request failed, retrying")
		j.deps.observer.ObservePoll("error")
		j.scheduleLocked()
		return
	}

	if status.Kind == StatusComplete && status.URL != "" {
		j.finishLocked(status.URL)
		j.deps.observer.ObservePoll("complete")
		return
	}

	j.deps.observer.ObservePoll("pending")
	j.scheduleLocked()
}

func (j *Job) scheduleLocked() {
	j.timer = time.AfterFunc(j.deps.interval, j.Refresh)
}

func (j *Job) finishLocked(downloadURL string) {
	j.downloadURL = downloadURL

	if err := j.deps.store.Write(context.Background(), j.key, j.recordLocked()); err != nil {
		j.deps.logger.Error().Err(err).Str("url", j.url).Msg("Failed to persist completed download")
	}
	if j.container != nil {
		j.container.put(j.itemLocked())
	}

	j.deps.logger.Info().
		Str("resource", j.resource).
		Str("filename", j.filename).
		Str("download_url", downloadURL).
		Msg("Download ready")
}

// stopLocked invalidates any outstanding request and pending timer
func (j *Job) stopLocked() {
	j.generation++
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
}

// Close cancels polling, removes the job from the view, deletes its record and
// unregisters it from the container. Closing twice is a no-op.
func (j *Job) Close(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.stopLocked()
	container := j.container
	initialized := j.initialized
	onClose := j.onClose
	j.mu.Unlock()

	if container != nil {
		container.remove(j.key)
	}
	err := j.deps.store.Remove(ctx, j.key)
	if initialized && container != nil {
		container.Subtract()
	}
	if onClose != nil {
		onClose(j)
	}

	j.deps.logger.Debug().Str("url", j.url).Msg("Download closed")
	return err
}

// Suspend stops polling without touching the record or the view, so that the job
// resumes on the next rehydration.
func (j *Job) Suspend() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.closed = true
	j.stopLocked()
}
