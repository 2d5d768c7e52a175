package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ternarybob/fecview/internal/tables"
)

// View state query parameters sent by the table page with every call
const (
	ParamLocation = "_location"  // the page's current query string
	ParamWidth    = "_width"     // viewport width in pixels
	ParamHideNull = "_hide_null" // "hide rows with missing values" checkbox
)

// Command is one widget operation for the page to replay, in order
type Command struct {
	Op   string                 `json:"op"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// pageView stands in for the table page during one request. Widget calls made by
// the controller are recorded as commands; form, location, width and checkbox
// state come from the request.
type pageView struct {
	mu       sync.Mutex
	commands []Command

	names    []string
	fields   []tables.Field
	location url.Values
	hasBar   bool
	width    int
	hideNull *bool
}

// newPageView reads the view state of r. Form fields are the request parameters
// named after the definition's filters.
func newPageView(r *http.Request, def *tables.Definition) *pageView {
	query := r.URL.Query()
	v := &pageView{names: def.Filters}

	for _, name := range def.Filters {
		for _, value := range query[name] {
			v.fields = append(v.fields, tables.Field{Name: name, Value: value})
		}
	}

	if raw, ok := query[ParamLocation]; ok && len(raw) > 0 {
		v.hasBar = true
		v.location = parseLocation(raw[0])
	}
	if width, err := strconv.Atoi(query.Get(ParamWidth)); err == nil && width > 0 {
		v.width = width
	}
	if raw := query.Get(ParamHideNull); raw != "" {
		if checked, err := strconv.ParseBool(raw); err == nil {
			v.hideNull = &checked
		}
	}
	return v
}

func parseLocation(raw string) url.Values {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return url.Values{}
	}
	return values
}

// View returns the controller collaborators backed by this request
func (v *pageView) View(def *tables.Definition) tables.View {
	view := tables.View{Table: v, Panel: v}
	if def.UseFilters() {
		view.Form = v
		if v.hasBar {
			view.Bar = v
		}
	}
	if v.width > 0 {
		view.Viewport = v
	}
	if v.hideNull != nil {
		view.HideNull = v
	}
	return view
}

// Commands returns the recorded commands
func (v *pageView) Commands() []Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Command(nil), v.commands...)
}

func (v *pageView) record(op string, args map[string]interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = append(v.commands, Command{Op: op, Args: args})
}

func (v *pageView) Reload() { v.record("reload", nil) }

func (v *pageView) SetProcessing(on bool) {
	v.record("processing", map[string]interface{}{"on": on})
}

func (v *pageView) SetColumnsVisible(class string, visible bool) {
	v.record("columns", map[string]interface{}{"class": class, "visible": visible})
}

func (v *pageView) SetActiveRow(index int) {
	v.record("activeRow", map[string]interface{}{"row": index})
}

func (v *pageView) Focus(target string) {
	v.record("focus", map[string]interface{}{"target": target})
}

func (v *pageView) Show(content string, pdfURL string) {
	v.record("panel", map[string]interface{}{"open": true, "content": content, "pdfUrl": pdfURL})
}

func (v *pageView) Hide() {
	v.record("panel", map[string]interface{}{"open": false})
}

func (v *pageView) Serialize() []tables.Field {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]tables.Field(nil), v.fields...)
}

func (v *pageView) Fields() []string { return v.names }

func (v *pageView) ActivateFromURL(query url.Values) {
	var fields []tables.Field
	for _, name := range v.names {
		for _, value := range query[name] {
			fields = append(fields, tables.Field{Name: name, Value: value})
		}
	}
	v.mu.Lock()
	v.fields = fields
	v.mu.Unlock()
	v.record("form", map[string]interface{}{"fields": fields})
}

func (v *pageView) Query() url.Values {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.location
}

func (v *pageView) Push(query url.Values) {
	v.mu.Lock()
	v.location = query
	v.mu.Unlock()
	v.record("pushState", map[string]interface{}{"query": "?" + query.Encode()})
}

func (v *pageView) Width() int { return v.width }

func (v *pageView) Checked() bool { return *v.hideNull }
