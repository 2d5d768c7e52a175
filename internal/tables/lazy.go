package tables

import (
	"sync"
	"sync/atomic"
)

// Lazy defers controller initialization until its table is first shown
type Lazy struct {
	once        sync.Once
	init        func() (*Controller, error)
	initialized atomic.Bool

	controller *Controller
	err        error
}

// NewLazy wraps an initializer
func NewLazy(init func() (*Controller, error)) *Lazy {
	return &Lazy{init: init}
}

// Show initializes the controller on first call and returns it
func (l *Lazy) Show() (*Controller, error) {
	l.once.Do(func() {
		l.controller, l.err = l.init()
		l.initialized.Store(true)
	})
	return l.controller, l.err
}

// Initialized reports whether Show has run
func (l *Lazy) Initialized() bool {
	return l.initialized.Load()
}
