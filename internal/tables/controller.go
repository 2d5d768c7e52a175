package tables

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/fecapi"
)

const (
	// DefaultDebounce delays a filter-change reload until the form is quiet
	DefaultDebounce = 250 * time.Millisecond

	// DefaultBreakpoint is the viewport width below which tablet columns hide with the panel
	DefaultBreakpoint = 980

	// DefaultLength is used when a draw asks for all rows or none
	DefaultLength = 30
)

// ErrRowNotFound is returned when activating a row the last draw did not return
var ErrRowNotFound = errors.New("row not found")

// Fetcher retrieves one page of a table endpoint
type Fetcher interface {
	Fetch(ctx context.Context, path string, query url.Values) (*fecapi.Response, error)
}

// Observer counts draws by outcome
type Observer interface {
	ObserveDraw(table string, outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveDraw(string, string) {}

// Page is the normalized result of one draw
type Page struct {
	Draw            int        `json:"draw"`
	RecordsTotal    int64      `json:"recordsTotal"`
	RecordsFiltered int64      `json:"recordsFiltered"`
	Data            [][]string `json:"data"`
	Error           string     `json:"error,omitempty"`
}

// Callbacks customize a controller's response handling
type Callbacks struct {
	// AfterRender runs on every successfully rendered page
	AfterRender func(page *Page)
}

// RowEvent is a click or key press on a table row
type RowEvent struct {
	Type     string `json:"type"`  // "click" or "keypress"
	Which    int    `json:"which"` // key code for key presses
	Index    int    `json:"index"`
	OnLink   bool   `json:"onLink"`
	EmptyRow bool   `json:"emptyRow"`
}

// Controller drives one table for one session
type Controller struct {
	def       *Definition
	fetcher   Fetcher
	session   *Session
	strategy  Strategy
	callbacks Callbacks
	logger    arbor.ILogger
	observer  Observer

	debounce   time.Duration
	breakpoint int

	mu        sync.Mutex
	changeSeq uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithDebounce sets the filter-change debounce
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithBreakpoint sets the tablet breakpoint in pixels
func WithBreakpoint(px int) Option {
	return func(c *Controller) {
		if px > 0 {
			c.breakpoint = px
		}
	}
}

// WithObserver reports draw outcomes
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// Initialize wires a controller for def on session. Pages of tables with bar columns
// are scaled after render unless callbacks supply their own hook.
func Initialize(def *Definition, fetcher Fetcher, session *Session, callbacks Callbacks, logger arbor.ILogger, opts ...Option) (*Controller, error) {
	strategy, err := StrategyFor(def.Pagination)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", def.Name, err)
	}

	if callbacks.AfterRender == nil && hasBars(def.Columns) {
		callbacks.AfterRender = ScaleBars
	}

	c := &Controller{
		def:        def,
		fetcher:    fetcher,
		session:    session,
		strategy:   strategy,
		callbacks:  callbacks,
		logger:     logger,
		observer:   noopObserver{},
		debounce:   DefaultDebounce,
		breakpoint: DefaultBreakpoint,
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Debug().
		Str("table", def.Name).
		Str("session", session.ID()).
		Str("pagination", def.Pagination).
		Msg("Table initialized")
	return c, nil
}

// Definition returns the table definition
func (c *Controller) Definition() *Definition { return c.def }

// Session returns the controller's session
func (c *Controller) Session() *Session { return c.session }

// Draw serves one redraw: it syncs filters from the form to the session and the
// address bar, composes the query, fetches, captures the seek cursor and renders.
// A failed fetch yields a page carrying Error and no rows.
func (c *Controller) Draw(ctx context.Context, view View, req Request) Page {
	view = view.withDefaults()
	if req.Length <= 0 {
		req.Length = DefaultLength
	}
	if req.Start < 0 {
		req.Start = 0
	}

	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if view.Form != nil {
		s.filters = MapFilters(view.Form.Serialize())
		if view.Bar != nil {
			PushQuery(view.Bar, s.filters, view.Form.Fields())
		}
	}

	query := c.composeQuery(s, view, req)

	view.Table.SetProcessing(true)
	defer view.Table.SetProcessing(false)

	resp, err := c.fetcher.Fetch(ctx, c.def.Path, query)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("table", c.def.Name).
			Int("start", req.Start).
			Int("length", req.Length).
			Msg("Table fetch failed")
		c.observer.ObserveDraw(c.def.Name, "error")
		return Page{
			Draw:  req.Draw,
			Data:  [][]string{},
			Error: "Results could not be loaded. Please try again.",
		}
	}

	c.strategy.HandleResponse(s, req, resp)
	s.last = resp

	page := Page{
		Draw:            req.Draw,
		RecordsTotal:    resp.Pagination.Count,
		RecordsFiltered: resp.Pagination.Count,
		Data:            make([][]string, 0, len(resp.Results)),
	}
	for i, row := range resp.Results {
		page.Data = append(page.Data, RenderRow(c.def.Columns, row, i, s.filters))
	}
	if c.callbacks.AfterRender != nil {
		c.callbacks.AfterRender(&page)
	}

	c.observer.ObserveDraw(c.def.Name, "ok")
	return page
}

// composeQuery merges base query, paging, filters, sort_hide_null and sort
func (c *Controller) composeQuery(s *Session, view View, req Request) url.Values {
	query := c.strategy.MapQuery(s, req)
	for name, values := range s.filters {
		query[name] = append([]string(nil), values...)
	}
	if c.def.UseHideNull() {
		query.Set("sort_hide_null", strconv.FormatBool(view.HideNull.Checked()))
	}
	if sorts := MapSort(req.Order, c.def.Columns); len(sorts) > 0 {
		query["sort"] = sorts
	}

	composed := url.Values{}
	for name, value := range c.def.BaseQuery {
		composed.Add(name, value)
	}
	for name, values := range query {
		for _, value := range values {
			composed.Add(name, value)
		}
	}
	return composed
}

// OnFilterChange handles one change of a filter control. Changes are debounced:
// only the last change of a burst closes the panel and reloads the table, and it
// reports true. Earlier changes return false once superseded.
func (c *Controller) OnFilterChange(ctx context.Context, view View) (bool, error) {
	view = view.withDefaults()

	c.mu.Lock()
	c.changeSeq++
	seq := c.changeSeq
	c.mu.Unlock()

	timer := time.NewTimer(c.debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	c.mu.Lock()
	latest := seq == c.changeSeq
	c.mu.Unlock()
	if !latest {
		return false, nil
	}

	c.ClosePanel(view)
	view.Table.Reload()
	return true, nil
}

// OnNavigate handles back/forward navigation: the form is re-activated from the
// URL and the table reloads only when the resulting filters changed.
func (c *Controller) OnNavigate(view View, query url.Values) bool {
	view = view.withDefaults()
	if view.Form == nil {
		return false
	}

	view.Form.ActivateFromURL(query)
	next := MapFilters(view.Form.Serialize())

	s := c.session
	s.mu.Lock()
	changed := !next.Equal(s.filters)
	s.mu.Unlock()

	if changed {
		view.Table.Reload()
	}
	return changed
}

// ActivateRow opens the detail panel for a clicked row or a row where enter was
// pressed. Clicks on links and on the empty-results row are ignored. It reports
// whether the panel opened.
func (c *Controller) ActivateRow(ctx context.Context, view View, event RowEvent) (bool, error) {
	view = view.withDefaults()
	if event.Type != "click" && event.Which != 13 {
		return false, nil
	}
	if event.OnLink || event.EmptyRow || !c.def.HasPanel() {
		return false, nil
	}

	row, ok := c.session.row(event.Index)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrRowNotFound, event.Index)
	}

	detail, err := c.fetchDetail(ctx, row)
	if err != nil {
		return false, err
	}

	var content bytes.Buffer
	if err := c.def.panel.Execute(&content, detail); err != nil {
		return false, fmt.Errorf("failed to render panel for %s: %w", c.def.Name, err)
	}
	pdfURL := stringify(detail["pdf_url"])

	view.Panel.Show(content.String(), pdfURL)
	view.Table.SetActiveRow(event.Index)
	view.Table.SetColumnsVisible(ClassHidePanel, false)
	view.Table.Focus(FocusPanelClose)
	if view.Viewport.Width() < c.breakpoint {
		view.Table.SetColumnsVisible(ClassHidePanelTablet, false)
	}

	c.session.mu.Lock()
	c.session.panel = PanelState{Open: true, Row: event.Index, PDFURL: pdfURL}
	c.session.mu.Unlock()

	return true, nil
}

// ClosePanel hides the detail panel and restores responsive column visibility
func (c *Controller) ClosePanel(view View) {
	view = view.withDefaults()

	view.Table.Focus(FocusActiveRow)
	view.Table.SetActiveRow(-1)
	view.Panel.Hide()
	view.Table.SetColumnsVisible(ClassHidePanelTablet, true)
	if view.Viewport.Width() > c.breakpoint {
		view.Table.SetColumnsVisible(ClassHidePanel, true)
	}

	c.session.mu.Lock()
	c.session.panel = PanelState{}
	c.session.mu.Unlock()
}

var placeholder = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// fetchDetail returns the row itself, or the first result of the definition's
// detail path with {field} placeholders filled from the row.
func (c *Controller) fetchDetail(ctx context.Context, row map[string]any) (map[string]any, error) {
	if c.def.DetailPath == "" {
		return row, nil
	}

	path := placeholder.ReplaceAllStringFunc(c.def.DetailPath, func(match string) string {
		return url.PathEscape(stringify(row[match[1:len(match)-1]]))
	})
	resp, err := c.fetcher.Fetch(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch row detail: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: no detail at %s", ErrRowNotFound, path)
	}
	return resp.Results[0], nil
}

func hasBars(columns []Column) bool {
	for _, column := range columns {
		if column.Format == "bar-currency" || column.Format == "total" {
			return true
		}
	}
	return false
}
