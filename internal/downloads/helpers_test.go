package downloads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/interfaces"
)

// memKV is an in-memory KeyValueStorage
type memKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemKV() *memKV {
	return &memKV{values: make(map[string]string)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return value, nil
}

func (m *memKV) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return interfaces.ErrKeyNotFound
	}
	delete(m.values, key)
	return nil
}

func (m *memKV) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pairs []interfaces.KeyValuePair
	for key, value := range m.values {
		if strings.HasPrefix(key, prefix) {
			pairs = append(pairs, interfaces.KeyValuePair{Key: key, Value: value})
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].Key < pairs[b].Key })
	return pairs, nil
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

// scriptedChecker replays responses in order, repeating the last one
type scriptedChecker struct {
	mu        sync.Mutex
	calls     int
	filenames []string
	responses []func(ctx context.Context) (Status, error)
}

func (c *scriptedChecker) CheckStatus(ctx context.Context, apiURL string, filename string) (Status, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.filenames = append(c.filenames, filename)
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	respond := c.responses[i]
	c.mu.Unlock()
	return respond(ctx)
}

func (c *scriptedChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func respond(status Status, err error) func(ctx context.Context) (Status, error) {
	return func(ctx context.Context) (Status, error) { return status, err }
}

func blockUntilCancelled(ctx context.Context) (Status, error) {
	<-ctx.Done()
	return Status{}, ctx.Err()
}

// recordingMount records what the download list renders
type recordingMount struct {
	mu        sync.Mutex
	attached  int
	destroyed int
	items     map[string]Item
}

func newRecordingMount() *recordingMount {
	return &recordingMount{items: make(map[string]Item)}
}

func (r *recordingMount) Attach() ListView {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached++
	return r
}

func (r *recordingMount) Put(item Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.Key] = item
}

func (r *recordingMount) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *recordingMount) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed++
	r.items = make(map[string]Item)
}

func (r *recordingMount) item(key string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[key]
	return item, ok
}

func (r *recordingMount) destroyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

func (r *recordingMount) attachCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

// gatedMount holds the first Destroy until release is closed
type gatedMount struct {
	*recordingMount
	destroying chan struct{}
	release    chan struct{}
}

func newGatedMount() *gatedMount {
	return &gatedMount{
		recordingMount: newRecordingMount(),
		destroying:     make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
}

func (g *gatedMount) Attach() ListView {
	g.recordingMount.Attach()
	return g
}

func (g *gatedMount) Destroy() {
	select {
	case g.destroying <- struct{}{}:
	default:
	}
	<-g.release
	g.recordingMount.Destroy()
}

var fixedNow = time.Date(2016, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestManager(t *testing.T, kv *memKV, checker StatusChecker, mount Mount, opts ...Option) *Manager {
	t.Helper()
	logger := arbor.NewLogger()
	opts = append([]Option{WithPollInterval(5 * time.Millisecond), WithClock(func() time.Time { return fixedNow })}, opts...)
	m := NewManager(NewStore(kv, logger), checker, mount, logger, opts...)
	t.Cleanup(m.Shutdown)
	return m
}

func storeRecord(t *testing.T, kv *memKV, sourceURL string, record Record) {
	t.Helper()
	store := NewStore(kv, arbor.NewLogger())
	require.NoError(t, store.Write(context.Background(), Key(sourceURL), record))
}

func stringPtr(s string) *string {
	return &s
}
