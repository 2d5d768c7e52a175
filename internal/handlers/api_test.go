package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/common"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func TestAPIHandler_Health(t *testing.T) {
	h := NewAPIHandler(arbor.NewLogger(), fixedCounter(3))

	done := make(chan struct{})
	common.SafeGo(arbor.NewLogger(), "healthTest", func() { close(done) })
	<-done

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status            string `json:"status"`
		Downloads         int    `json:"downloads"`
		GoroutinesSpawned int64  `json:"goroutines_spawned"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Downloads)
	assert.GreaterOrEqual(t, body.GoroutinesSpawned, int64(1))

	rec = httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest("POST", "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
