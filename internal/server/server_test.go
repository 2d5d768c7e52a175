package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/app"
	"github.com/ternarybob/fecview/internal/common"
	"github.com/ternarybob/fecview/internal/handlers"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Tables.DefinitionsDir = t.TempDir()
	cfg.API.Location = "http://127.0.0.1:1"

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application).Handler()
}

func TestRoutes(t *testing.T) {
	handler := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"index", "GET", "/", http.StatusOK},
		{"table page", "GET", "/tables/receipts", http.StatusOK},
		{"unknown table page", "GET", "/tables/nope", http.StatusNotFound},
		{"unknown page", "GET", "/nope", http.StatusNotFound},
		{"health", "GET", "/api/health", http.StatusOK},
		{"version", "GET", "/api/version", http.StatusOK},
		{"metrics", "GET", "/metrics", http.StatusOK},
		{"table list", "GET", "/api/tables", http.StatusOK},
		{"definition", "GET", "/api/tables/receipts/definition", http.StatusOK},
		{"unknown table subpath", "GET", "/api/tables/receipts/unknown", http.StatusNotFound},
		{"panel wrong method", "GET", "/api/tables/receipts/panel", http.StatusMethodNotAllowed},
		{"draw wrong method", "PUT", "/api/tables/receipts", http.StatusMethodNotAllowed},
		{"downloads list", "GET", "/api/downloads", http.StatusOK},
		{"downloads wrong method", "PUT", "/api/downloads", http.StatusMethodNotAllowed},
		{"close without url", "DELETE", "/api/downloads", http.StatusBadRequest},
		{"unknown api", "GET", "/api/nope", http.StatusNotFound},
		{"preflight", "OPTIONS", "/api/downloads", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRoutes_TablePageIssuesSessionCookie(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/tables/receipts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "fecview_session=")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
}

func TestRoutes_MetricsExposeInstruments(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{app: &app.App{Logger: arbor.NewLogger()}}
	handler := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestScope(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/tables/receipts/rows/2", nil)
	req.AddCookie(&http.Cookie{Name: handlers.SessionCookie, Value: "6f1c2a9e-0000-4000-8000-000000000000"})
	table, session := requestScope(req)
	assert.Equal(t, "receipts", table)
	assert.Equal(t, "6f1c2a9e", session)

	table, session = requestScope(httptest.NewRequest("GET", "/tables/filings", nil))
	assert.Equal(t, "filings", table)
	assert.Empty(t, session)

	table, _ = requestScope(httptest.NewRequest("GET", "/api/downloads", nil))
	assert.Empty(t, table)
}
