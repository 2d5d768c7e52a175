package tables

type seekKey struct {
	length int
	start  int
}

// SeekIndex caches seek cursors by (length, start). It remembers the filter set it
// last saw and drops every cursor as soon as the active filters differ from it.
type SeekIndex struct {
	filters Filters
	synced  bool
	cursors map[seekKey]map[string]any
}

func (s *SeekIndex) sync(active Filters) {
	if !s.synced || !s.filters.Equal(active) {
		s.cursors = nil
	}
	s.filters = active.Clone()
	s.synced = true
}

// Lookup returns the cursor stored for (length, start) under the active filters
func (s *SeekIndex) Lookup(active Filters, length, start int) (map[string]any, bool) {
	s.sync(active)
	cursor, ok := s.cursors[seekKey{length, start}]
	return cursor, ok
}

// Store records the cursor for (length, start) under the active filters
func (s *SeekIndex) Store(active Filters, length, start int, cursor map[string]any) {
	s.sync(active)
	if s.cursors == nil {
		s.cursors = make(map[seekKey]map[string]any)
	}
	s.cursors[seekKey{length, start}] = cursor
}

// Len returns the number of cached cursors
func (s *SeekIndex) Len() int {
	return len(s.cursors)
}
