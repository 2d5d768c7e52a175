package server

import (
	"net/http"

	"github.com/ternarybob/fecview/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI pages
	mux.HandleFunc("/", s.app.PageHandler.IndexHandler)
	mux.HandleFunc("/tables/", s.app.PageHandler.TablePageHandler)

	// Download list updates
	mux.HandleFunc("/ws/downloads", s.app.DownloadHub.HandleWebSocket)

	// API routes - Downloads (GET list, POST create, DELETE ?url= close)
	mux.HandleFunc("/api/downloads", s.handleDownloadsRoute)

	// API routes - Tables
	mux.HandleFunc("/api/tables", s.app.TableHandler.ListHandler)
	mux.HandleFunc("/api/tables/", s.handleTableRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleDownloadsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.DownloadHandler.ListHandler,
		s.app.DownloadHandler.CreateHandler,
		s.app.DownloadHandler.CloseHandler,
	)
}

// handleTableRoutes routes /api/tables/{name} and its subpaths
func (s *Server) handleTableRoutes(w http.ResponseWriter, r *http.Request) {
	segments := handlers.PathSegments(r.URL.Path, "/api/tables/")
	h := s.app.TableHandler

	switch {
	case len(segments) == 1:
		// GET /api/tables/{name} - draw
		RouteByMethod(w, r, MethodRouter{http.MethodGet: h.DrawHandler})
	case len(segments) == 2 && segments[1] == "definition":
		RouteByMethod(w, r, MethodRouter{http.MethodGet: h.DefinitionHandler})
	case len(segments) == 2 && segments[1] == "panel":
		RouteByMethod(w, r, MethodRouter{http.MethodDelete: h.PanelHandler})
	case len(segments) == 2 && segments[1] == "filters":
		RouteByMethod(w, r, MethodRouter{http.MethodPost: h.FilterChangeHandler})
	case len(segments) == 2 && segments[1] == "navigate":
		RouteByMethod(w, r, MethodRouter{http.MethodPost: h.NavigateHandler})
	case len(segments) == 3 && segments[1] == "rows":
		RouteByMethod(w, r, MethodRouter{http.MethodPost: h.RowHandler})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
