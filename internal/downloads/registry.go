package downloads

import (
	"sync"

	"github.com/ternarybob/arbor"
)

// Registry is the process-scoped handle owning the shared download container.
// A container exists only while at least one job is registered.
type Registry struct {
	mu        sync.Mutex
	container *Container
	logger    arbor.ILogger
}

// NewRegistry creates an empty registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{logger: logger}
}

// GetOrCreate returns the shared container with one more live job registered on it,
// attaching a new list view to mount if none exists. Registration happens under the
// registry lock so a concurrent teardown can never hand out a container it is destroying.
func (r *Registry) GetOrCreate(mount Mount) *Container {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.container == nil {
		r.container = &Container{
			registry: r,
			list:     mount.Attach(),
		}
		r.logger.Debug().Msg("Download container attached")
	}
	r.container.add()
	return r.container
}

// Current returns the live container, or nil
func (r *Registry) Current() *Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.container
}

// Reset drops the current container without destroying its view
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.container = nil
}

// Container is the shared download list and its live job count
type Container struct {
	mu        sync.Mutex
	registry  *Registry
	list      ListView
	items     int
	destroyed bool
}

func (c *Container) add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items++
}

// Subtract unregisters a job. The last one destroys the list view and releases the
// container; the registry lock is held throughout so the next GetOrCreate attaches
// a fresh view only after the old one is gone.
func (c *Container) Subtract() {
	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.items--
	if c.items > 0 {
		c.mu.Unlock()
		return
	}
	c.items = 0
	c.destroyed = true
	c.mu.Unlock()

	if r.container == c {
		r.container = nil
	}
	c.list.Destroy()
	r.logger.Debug().Msg("Download container destroyed")
}

// Count returns the number of live jobs
func (c *Container) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items
}

// Destroyed reports whether the container has torn down its view
func (c *Container) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Container) put(item Item) {
	c.list.Put(item)
}

func (c *Container) remove(key string) {
	c.list.Remove(key)
}
