package tables

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/fecapi"
)

// fakeFetcher returns queued responses and records every request
type fakeFetcher struct {
	mu        sync.Mutex
	paths     []string
	queries   []url.Values
	responses []*fecapi.Response
	err       error
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string, query url.Values) (*fecapi.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &fecapi.Response{}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeFetcher) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

// recordingTable records widget calls in order
type recordingTable struct {
	mu      sync.Mutex
	calls   []string
	reloads int
}

func (r *recordingTable) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingTable) Reload() {
	r.mu.Lock()
	r.reloads++
	r.mu.Unlock()
	r.record("reload")
}

func (r *recordingTable) SetProcessing(on bool) { r.record(fmt.Sprintf("processing:%t", on)) }

func (r *recordingTable) SetColumnsVisible(class string, visible bool) {
	r.record(fmt.Sprintf("columns:%s:%t", class, visible))
}

func (r *recordingTable) SetActiveRow(index int) { r.record(fmt.Sprintf("active:%d", index)) }

func (r *recordingTable) Focus(target string) { r.record("focus:" + target) }

func (r *recordingTable) reloadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}

type recordingPanel struct {
	content string
	pdfURL  string
	hidden  bool
}

func (p *recordingPanel) Show(content string, pdfURL string) {
	p.content = content
	p.pdfURL = pdfURL
	p.hidden = false
}

func (p *recordingPanel) Hide() { p.hidden = true }

// staticForm is a filter form with fixed controls
type staticForm struct {
	names  []string
	fields []Field
}

func (f *staticForm) Serialize() []Field { return f.fields }

func (f *staticForm) Fields() []string { return f.names }

func (f *staticForm) ActivateFromURL(query url.Values) {
	var fields []Field
	for _, name := range f.names {
		for _, value := range query[name] {
			fields = append(fields, Field{Name: name, Value: value})
		}
	}
	f.fields = fields
}

type memoryBar struct {
	query  url.Values
	pushes []url.Values
}

func (b *memoryBar) Query() url.Values { return b.query }

func (b *memoryBar) Push(query url.Values) {
	b.query = query
	b.pushes = append(b.pushes, query)
}

type fixedViewport int

func (v fixedViewport) Width() int { return int(v) }

type checkbox bool

func (c checkbox) Checked() bool { return bool(c) }

func testDefinition(t *testing.T, pagination string) *Definition {
	t.Helper()
	def := &Definition{
		Name:       "receipts",
		Title:      "Receipts",
		Path:       "schedules/schedule_a/",
		BaseQuery:  map[string]string{"is_individual": "true"},
		Pagination: pagination,
		Filters:    []string{"committee_id", "cycle"},
		Panel:      `<h3>{{ index . "contributor_name" }}</h3>`,
		Columns: []Column{
			{Data: "contributor_name", Title: "Contributor"},
			{Data: "committee", Title: "Recipient", Format: "committee", Class: ClassHidePanel},
			{Data: "contribution_receipt_amount", Title: "Amount", Format: "currency"},
			{Data: "total", Title: "Total", Format: "currency"},
		},
	}
	catalog := &Catalog{definitions: make(map[string]*Definition)}
	require.NoError(t, catalog.add(def, newValidator()))
	return def
}

func newTestController(t *testing.T, def *Definition, fetcher Fetcher, opts ...Option) *Controller {
	t.Helper()
	c, err := Initialize(def, fetcher, NewSession("session-1", def.Name), Callbacks{}, arbor.NewLogger(), opts...)
	require.NoError(t, err)
	return c
}
