package tables

import (
	"sync"

	"github.com/ternarybob/fecview/internal/fecapi"
)

// PanelState is the detail panel as last rendered for a session
type PanelState struct {
	Open   bool   `json:"open"`
	Row    int    `json:"row"`
	PDFURL string `json:"pdfUrl,omitempty"`
}

// Session is the per-browser, per-table state: the active filters, the seek
// cursor cache, the last response (for row activation) and the panel.
// Draws on one session are serialized by its mutex.
type Session struct {
	mu sync.Mutex

	id    string
	table string

	filters Filters
	seek    SeekIndex
	last    *fecapi.Response
	panel   PanelState
}

// NewSession creates an empty session
func NewSession(id, table string) *Session {
	return &Session{id: id, table: table}
}

// ID returns the browser session id
func (s *Session) ID() string { return s.id }

// Table returns the table name
func (s *Session) Table() string { return s.table }

// Filters returns a copy of the active filter set
func (s *Session) Filters() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// Panel returns the current panel state
func (s *Session) Panel() PanelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panel
}

// SeekCursors returns the number of cached seek cursors
func (s *Session) SeekCursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seek.Len()
}

func (s *Session) row(index int) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || index < 0 || index >= len(s.last.Results) {
		return nil, false
	}
	return s.last.Results[index], true
}
