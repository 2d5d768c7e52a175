package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/tables"
)

// SessionCookie carries the browser session id table state is keyed by
const SessionCookie = "fecview_session"

const tablesPrefix = "/api/tables/"

// TableSessions resolves the controller of a browser session's table
type TableSessions interface {
	Catalog() *tables.Catalog
	Controller(sessionID, table string) (*tables.Controller, error)
}

type TableHandler struct {
	sessions TableSessions
	logger   arbor.ILogger
}

func NewTableHandler(sessions TableSessions, logger arbor.ILogger) *TableHandler {
	return &TableHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// DrawResponse is a DataTables server-side response plus the widget commands
// produced while drawing
type DrawResponse struct {
	tables.Page
	Commands []Command `json:"commands,omitempty"`
}

// RowRequest is a click or key press on a table row
type RowRequest struct {
	Type     string `json:"type"`
	Which    int    `json:"which"`
	OnLink   bool   `json:"onLink"`
	EmptyRow bool   `json:"emptyRow"`
}

// NavigateRequest carries the query string the page navigated to
type NavigateRequest struct {
	Location string `json:"location"`
}

// ColumnInfo is one DataTables column definition
type ColumnInfo struct {
	Data      string `json:"data"`
	Title     string `json:"title"`
	ClassName string `json:"className,omitempty"`
	Orderable bool   `json:"orderable"`
}

// TableInfo describes a table to the page that renders it
type TableInfo struct {
	Name        string        `json:"name"`
	Title       string        `json:"title"`
	Description template.HTML `json:"description,omitempty"`
	Pagination  string        `json:"pagination"`
	Filters     []string      `json:"filters,omitempty"`
	HideNull    bool          `json:"hideNull"`
	Lazy        bool          `json:"lazy"`
	Panel       bool          `json:"panel"`
	Columns     []ColumnInfo  `json:"columns"`
}

func tableInfo(def *tables.Definition) TableInfo {
	info := TableInfo{
		Name:        def.Name,
		Title:       def.Title,
		Description: def.DescriptionHTML(),
		Pagination:  def.Pagination,
		Filters:     def.Filters,
		HideNull:    def.UseHideNull(),
		Lazy:        def.Lazy,
		Panel:       def.HasPanel(),
		Columns:     make([]ColumnInfo, 0, len(def.Columns)),
	}
	for _, column := range def.Columns {
		info.Columns = append(info.Columns, ColumnInfo{
			Data:      column.Data,
			Title:     column.Title,
			ClassName: column.Class,
			Orderable: column.IsOrderable(),
		})
	}
	return info
}

// ListHandler returns every table definition
func (h *TableHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	defs := h.sessions.Catalog().List()
	infos := make([]TableInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, tableInfo(def))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tables": infos})
}

// DefinitionHandler returns one table's definition (GET /api/tables/{name}/definition)
func (h *TableHandler) DefinitionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	def, err := h.sessions.Catalog().Get(tableName(r))
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, tableInfo(def))
}

// DrawHandler serves a DataTables server-side draw (GET /api/tables/{name})
func (h *TableHandler) DrawHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	controller, ok := h.controller(w, r)
	if !ok {
		return
	}

	req, err := parseDrawRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	def := controller.Definition()
	view := newPageView(r, def)
	page := controller.Draw(r.Context(), view.View(def), req)

	WriteJSON(w, http.StatusOK, DrawResponse{Page: page, Commands: view.Commands()})
}

// RowHandler activates a row (POST /api/tables/{name}/rows/{index})
func (h *TableHandler) RowHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	segments := PathSegments(r.URL.Path, tablesPrefix)
	if len(segments) != 3 || segments[1] != "rows" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	index, err := strconv.Atoi(segments[2])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "row index must be a number")
		return
	}

	var req RowRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = "click"
	}

	controller, ok := h.controller(w, r)
	if !ok {
		return
	}

	def := controller.Definition()
	view := newPageView(r, def)
	opened, err := controller.ActivateRow(r.Context(), view.View(def), tables.RowEvent{
		Type:     req.Type,
		Which:    req.Which,
		Index:    index,
		OnLink:   req.OnLink,
		EmptyRow: req.EmptyRow,
	})
	if errors.Is(err, tables.ErrRowNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("table", def.Name).Int("row", index).Msg("Failed to open detail panel")
		WriteError(w, http.StatusBadGateway, "Details could not be loaded. Please try again.")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"opened":   opened,
		"panel":    controller.Session().Panel(),
		"commands": view.Commands(),
	})
}

// PanelHandler closes the detail panel (DELETE /api/tables/{name}/panel)
func (h *TableHandler) PanelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	controller, ok := h.controller(w, r)
	if !ok {
		return
	}

	def := controller.Definition()
	view := newPageView(r, def)
	controller.ClosePanel(view.View(def))

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"panel":    controller.Session().Panel(),
		"commands": view.Commands(),
	})
}

// FilterChangeHandler reports a filter control change (POST /api/tables/{name}/filters).
// The call returns once the change is debounced; only the last of a burst reloads.
func (h *TableHandler) FilterChangeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	controller, ok := h.controller(w, r)
	if !ok {
		return
	}

	def := controller.Definition()
	view := newPageView(r, def)
	reloaded, err := controller.OnFilterChange(r.Context(), view.View(def))
	if err != nil {
		h.logger.Debug().Err(err).Str("table", def.Name).Msg("Filter change abandoned")
		WriteError(w, http.StatusRequestTimeout, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reload":   reloaded,
		"commands": view.Commands(),
	})
}

// NavigateHandler handles back/forward navigation (POST /api/tables/{name}/navigate)
func (h *TableHandler) NavigateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req NavigateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	controller, ok := h.controller(w, r)
	if !ok {
		return
	}

	def := controller.Definition()
	view := newPageView(r, def)
	reloaded := controller.OnNavigate(view.View(def), parseLocation(req.Location))

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reload":   reloaded,
		"commands": view.Commands(),
	})
}

// controller resolves the session's controller for the table named in the path,
// writing the error response when it cannot
func (h *TableHandler) controller(w http.ResponseWriter, r *http.Request) (*tables.Controller, bool) {
	name := tableName(r)
	controller, err := h.sessions.Controller(SessionID(w, r), name)
	if errors.Is(err, tables.ErrUnknownTable) {
		WriteError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		h.logger.Error().Err(err).Str("table", name).Msg("Failed to initialize table")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return controller, true
}

func tableName(r *http.Request) string {
	segments := PathSegments(r.URL.Path, tablesPrefix)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// SessionID returns the browser session id, issuing a new session cookie when the
// request carries none
func SessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	return id
}

// parseDrawRequest reads the DataTables server-side parameters:
// draw, start, length and order[i][column] / order[i][dir]
func parseDrawRequest(r *http.Request) (tables.Request, error) {
	query := r.URL.Query()
	var req tables.Request
	var err error

	if req.Draw, err = intParam(query.Get("draw"), 0); err != nil {
		return req, fmt.Errorf("invalid draw: %w", err)
	}
	if req.Start, err = intParam(query.Get("start"), 0); err != nil {
		return req, fmt.Errorf("invalid start: %w", err)
	}
	if req.Length, err = intParam(query.Get("length"), tables.DefaultLength); err != nil {
		return req, fmt.Errorf("invalid length: %w", err)
	}

	for i := 0; ; i++ {
		raw := query.Get(fmt.Sprintf("order[%d][column]", i))
		if raw == "" {
			break
		}
		column, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid order column: %w", err)
		}
		req.Order = append(req.Order, tables.Order{
			Column: column,
			Dir:    query.Get(fmt.Sprintf("order[%d][dir]", i)),
		})
	}
	return req, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
