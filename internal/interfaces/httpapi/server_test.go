package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5rtd/internal/application/usecase/rtd"
	"mt5rtd/internal/domain"
	"mt5rtd/internal/testutils"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestServer(t *testing.T, fs *testutils.FakeSession) (*Server, *rtd.Worker) {
	t.Helper()
	w := rtd.NewWorker(rtd.Deps{
		Session:      fs,
		Store:        testutils.NewMemoryStore(),
		Publisher:    testutils.NewRecordingPublisher(),
		Watchlist:    []string{"PETR4"},
		PollInterval: time.Hour,
	})
	return New(":0", w, nil), w
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerLifecycle(t *testing.T) {
	fs := testutils.NewFakeSession("PETR4")
	fs.SelectOK["PETR4"] = true
	fs.SetStreamTick("PETR4", domain.Tick{Bid: 37})
	s, w := newTestServer(t, fs)
	t.Cleanup(func() { _ = w.Stop(t.Context()) })

	rec := do(t, s, http.MethodPost, "/api/rtd/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/rtd/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st rtd.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Running)
	assert.Equal(t, "active", st.Status)
	assert.Equal(t, 1, st.ActiveCount)

	rec = do(t, s, http.MethodPost, "/api/rtd/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, w.Stats().Running)
}

func TestServerStartConnectError(t *testing.T) {
	fs := testutils.NewFakeSession("PETR4")
	fs.ConnectErr = errors.New("authorization failed")
	s, _ := newTestServer(t, fs)

	rec := do(t, s, http.MethodPost, "/api/rtd/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "authorization failed")
}

func TestServerSubscriptions(t *testing.T) {
	s, _ := newTestServer(t, testutils.NewFakeSession("PETR4", "VALE3"))

	rec := do(t, s, http.MethodPost, "/api/rtd/subscribe", `{"room":"r1","symbol":"petr4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Added   bool     `json:"added"`
		Removed bool     `json:"removed"`
		Symbols []string `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Added)
	assert.Equal(t, []string{"PETR4"}, resp.Symbols)

	rec = do(t, s, http.MethodPost, "/api/rtd/subscribe", `{"room":"r1","symbol":"PETR4"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Added)

	rec = do(t, s, http.MethodGet, "/api/rtd/rooms", "")
	assert.JSONEq(t, `{"r1":["PETR4"]}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/rtd/unsubscribe", `{"room":"r1","symbol":"PETR4"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Removed)

	rec = do(t, s, http.MethodGet, "/api/rtd/rooms/r1", "")
	assert.JSONEq(t, `{"room":"r1","symbols":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/rtd/subscribe", `{"room":"r1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
