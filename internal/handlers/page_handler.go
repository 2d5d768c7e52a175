package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/tables"
)

//go:embed pages/*.html
var pages embed.FS

type PageHandler struct {
	logger     arbor.ILogger
	templates  *template.Template
	catalog    *tables.Catalog
	exportBase string
}

// NewPageHandler parses the embedded page templates. exportBase is the API root
// that table exports are requested from, e.g. https://api.open.fec.gov/v1.
func NewPageHandler(catalog *tables.Catalog, exportBase string, logger arbor.ILogger) *PageHandler {
	templates := template.Must(template.ParseFS(pages, "pages/*.html"))

	return &PageHandler{
		logger:     logger,
		templates:  templates,
		catalog:    catalog,
		exportBase: strings.TrimSuffix(exportBase, "/"),
	}
}

// IndexHandler lists the tables
func (h *PageHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.render(w, "index.html", map[string]interface{}{
		"Title":  "Tables",
		"Tables": h.catalog.List(),
	})
}

// TablePageHandler renders one table page (GET /tables/{name})
func (h *PageHandler) TablePageHandler(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r.URL.Path, "/tables/")
	if len(segments) != 1 {
		http.NotFound(w, r)
		return
	}

	def, err := h.catalog.Get(segments[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	// Issue the session cookie with the page so the first draw already carries it
	SessionID(w, r)

	h.render(w, "table.html", map[string]interface{}{
		"Title":      def.Title,
		"Table":      def,
		"ExportBase": h.exportBase,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, templateName string, data map[string]interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, templateName, data); err != nil {
		h.logger.Error().
			Err(err).
			Str("template", templateName).
			Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
