package fecapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/downloads"
)

func newTestClient(server *httptest.Server, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithLocation(server.URL, "v1"),
		WithLogger(arbor.NewLogger()),
		WithRateLimit(1000),
		WithRetry(2, time.Millisecond),
	}, opts...)
	return NewClient("test-key", opts...)
}

func TestFetch_BuildsURLAndDecodesExactNumbers(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [{"committee_id": "C001", "contribution_receipt_amount": 250.5}],
			"pagination": {"count": 1234, "last_indexes": {"last_index": 4123456789012345678, "last_contribution_receipt_date": "2016-01-31"}}
		}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	resp, err := client.Fetch(context.Background(), "/schedules/schedule_a/", url.Values{
		"per_page":     {"30"},
		"committee_id": {"C001", "C002"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/schedules/schedule_a/", gotPath)
	assert.Equal(t, "test-key", gotQuery.Get("api_key"))
	assert.Equal(t, "30", gotQuery.Get("per_page"))
	assert.ElementsMatch(t, []string{"C001", "C002"}, gotQuery["committee_id"])

	assert.Equal(t, int64(1234), resp.Pagination.Count)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "C001", resp.Results[0]["committee_id"])
	assert.Equal(t, json.Number("4123456789012345678"), resp.Pagination.LastIndexes["last_index"])
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results": [], "pagination": {"count": 0}}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server).Fetch(context.Background(), "candidates", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server).Fetch(context.Background(), "candidates", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad api key", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server).Fetch(context.Background(), "candidates", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  downloads.Status
	}{
		{"complete", `{"status": "complete", "url": "https://files/x.zip"}`, downloads.Complete("https://files/x.zip")},
		{"queued", `{"status": "queued"}`, downloads.Pending()},
		{"complete without url", `{"status": "complete"}`, downloads.Pending()},
		{"empty", `{}`, downloads.Pending()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/download/candidates/", r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "candidates-2016-03-14T09:26:53.zip", body["filename"])
				w.Write([]byte(tt.reply))
			}))
			defer server.Close()

			status, err := newTestClient(server).CheckStatus(context.Background(), server.URL+"/v1/download/candidates/", "candidates-2016-03-14T09:26:53.zip")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestCheckStatus_ServerErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server).CheckStatus(context.Background(), server.URL+"/v1/download/x/", "x.zip")
	assert.ErrorIs(t, err, ErrServerError)
}

func TestCheckStatus_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(server).CheckStatus(ctx, server.URL+"/v1/download/x/", "x.zip")
	assert.ErrorIs(t, err, context.Canceled)
}
