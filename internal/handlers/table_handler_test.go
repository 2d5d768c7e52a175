package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/fecapi"
)

func receiptsPage() *fecapi.Response {
	return &fecapi.Response{
		Results: []map[string]any{
			{
				"contributor_name":            "Jane Doe",
				"contribution_receipt_amount": json.Number("250"),
				"contribution_receipt_date":   "2016-02-01",
			},
		},
		Pagination: fecapi.Pagination{
			Count:       1,
			LastIndexes: map[string]any{"last_index": json.Number("4123456789012345678")},
		},
	}
}

type drawBody struct {
	Draw            int        `json:"draw"`
	RecordsTotal    int64      `json:"recordsTotal"`
	RecordsFiltered int64      `json:"recordsFiltered"`
	Data            [][]string `json:"data"`
	Error           string     `json:"error"`
	Commands        []Command  `json:"commands"`
}

func serve(handler http.HandlerFunc, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == SessionCookie {
			return cookie
		}
	}
	return nil
}

func commandOps(commands []Command) []string {
	ops := make([]string, 0, len(commands))
	for _, command := range commands {
		ops = append(ops, command.Op)
	}
	return ops
}

func TestTableHandler_Draw(t *testing.T) {
	fetcher := &stubFetcher{resp: receiptsPage()}
	h := NewTableHandler(newTestSessions(t, fetcher), arbor.NewLogger())

	params := url.Values{
		"draw":              {"4"},
		"start":             {"0"},
		"length":            {"30"},
		"order[0][column]":  {"4"},
		"order[0][dir]":     {"desc"},
		"committee_id":      {"C001"},
		"contributor_state": {"VA"},
		"unrelated":         {"ignored"},
		ParamLocation:       {"?tab=receipts"},
		ParamWidth:          {"1200"},
		ParamHideNull:       {"false"},
	}
	rec := serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?"+params.Encode(), nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sessionCookie(rec))

	var body drawBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Draw)
	assert.Equal(t, int64(1), body.RecordsTotal)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Jane Doe", body.Data[0][0])
	assert.Empty(t, body.Error)

	query := fetcher.lastQuery()
	assert.Equal(t, "30", query.Get("per_page"))
	assert.Equal(t, "C001", query.Get("committee_id"))
	assert.Equal(t, "VA", query.Get("contributor_state"))
	assert.Equal(t, "false", query.Get("sort_hide_null"))
	assert.Equal(t, "-contribution_receipt_amount", query.Get("sort"))
	assert.Empty(t, query.Get("unrelated"))

	assert.Equal(t, []string{"pushState", "processing", "processing"}, commandOps(body.Commands))
	pushed, err := url.ParseQuery(strings.TrimPrefix(body.Commands[0].Args["query"].(string), "?"))
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"tab":               {"receipts"},
		"committee_id":      {"C001"},
		"contributor_state": {"VA"},
	}, pushed)
}

func TestTableHandler_DrawKeepsSeekCursorPerSession(t *testing.T) {
	fetcher := &stubFetcher{resp: receiptsPage()}
	h := NewTableHandler(newTestSessions(t, fetcher), arbor.NewLogger())

	first := serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?draw=1&start=0&length=30", nil), nil)
	cookie := sessionCookie(first)
	require.NotNil(t, cookie)

	serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?draw=2&start=30&length=30", nil), cookie)
	assert.Equal(t, "4123456789012345678", fetcher.lastQuery().Get("last_index"))

	// Another browser has no cursor for the second page
	serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?draw=1&start=30&length=30", nil), nil)
	assert.Empty(t, fetcher.lastQuery().Get("last_index"))
}

func TestTableHandler_DrawErrors(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("upstream down")}
	h := NewTableHandler(newTestSessions(t, fetcher), arbor.NewLogger())

	rec := serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?draw=2&length=30", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body drawBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Results could not be loaded. Please try again.", body.Error)
	assert.Empty(t, body.Data)

	rec = serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/contributions", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?start=x", nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTableHandler_RowAndPanel(t *testing.T) {
	fetcher := &stubFetcher{resp: receiptsPage()}
	h := NewTableHandler(newTestSessions(t, fetcher), arbor.NewLogger())

	draw := serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?length=30", nil), nil)
	cookie := sessionCookie(draw)

	rec := serve(h.RowHandler, httptest.NewRequest("POST", "/api/tables/receipts/rows/0?_width=700",
		strings.NewReader(`{"type":"click"}`)), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var opened struct {
		Opened bool `json:"opened"`
		Panel  struct {
			Open bool `json:"open"`
			Row  int  `json:"row"`
		} `json:"panel"`
		Commands []Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opened))
	assert.True(t, opened.Opened)
	assert.True(t, opened.Panel.Open)
	assert.Equal(t, []string{"panel", "activeRow", "columns", "focus", "columns"}, commandOps(opened.Commands))
	assert.Contains(t, opened.Commands[0].Args["content"], "Jane Doe")

	rec = serve(h.RowHandler, httptest.NewRequest("POST", "/api/tables/receipts/rows/9",
		strings.NewReader(`{"type":"click"}`)), cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h.RowHandler, httptest.NewRequest("POST", "/api/tables/receipts/rows/abc", nil), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.PanelHandler, httptest.NewRequest("DELETE", "/api/tables/receipts/panel?_width=1200", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed struct {
		Panel struct {
			Open bool `json:"open"`
		} `json:"panel"`
		Commands []Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.False(t, closed.Panel.Open)
	assert.Equal(t, []string{"focus", "activeRow", "panel", "columns", "columns"}, commandOps(closed.Commands))
}

func TestTableHandler_FilterChangeAndNavigate(t *testing.T) {
	fetcher := &stubFetcher{resp: receiptsPage()}
	h := NewTableHandler(newTestSessions(t, fetcher), arbor.NewLogger())

	draw := serve(h.DrawHandler, httptest.NewRequest("GET", "/api/tables/receipts?length=30&committee_id=C001", nil), nil)
	cookie := sessionCookie(draw)

	rec := serve(h.FilterChangeHandler, httptest.NewRequest("POST", "/api/tables/receipts/filters", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var changed struct {
		Reload   bool      `json:"reload"`
		Commands []Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &changed))
	assert.True(t, changed.Reload)
	assert.Equal(t, "reload", changed.Commands[len(changed.Commands)-1].Op)

	rec = serve(h.NavigateHandler, httptest.NewRequest("POST", "/api/tables/receipts/navigate",
		strings.NewReader(`{"location":"?committee_id=C001"}`)), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var same struct {
		Reload   bool      `json:"reload"`
		Commands []Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &same))
	assert.False(t, same.Reload)
	assert.Equal(t, []string{"form"}, commandOps(same.Commands))

	rec = serve(h.NavigateHandler, httptest.NewRequest("POST", "/api/tables/receipts/navigate",
		strings.NewReader(`{"location":"?committee_id=C002"}`)), cookie)
	var moved struct {
		Reload   bool      `json:"reload"`
		Commands []Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &moved))
	assert.True(t, moved.Reload)
	assert.Equal(t, []string{"form", "reload"}, commandOps(moved.Commands))
}

func TestTableHandler_Definitions(t *testing.T) {
	h := NewTableHandler(newTestSessions(t, &stubFetcher{}), arbor.NewLogger())

	rec := serve(h.ListHandler, httptest.NewRequest("GET", "/api/tables", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Tables []TableInfo `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Tables, 6)

	rec = serve(h.DefinitionHandler, httptest.NewRequest("GET", "/api/tables/filings/definition", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info TableInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "filings", info.Name)
	assert.True(t, info.Lazy)
	assert.NotEmpty(t, info.Columns)

	rec = serve(h.DefinitionHandler, httptest.NewRequest("GET", "/api/tables/nope/definition", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
