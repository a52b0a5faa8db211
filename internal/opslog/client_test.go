package opslog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmsync/internal/config"
)

type fakeOps struct {
	logins  atomic.Int32
	entries chan Entry
}

func (f *fakeOps) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/auth/login":
		f.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":      "tok-1",
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	case "/api/v1/logs":
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var e Entry
		_ = json.NewDecoder(r.Body).Decode(&e)
		f.entries <- e
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestCreateLog_LogsInOnce(t *testing.T) {
	ops := &fakeOps{entries: make(chan Entry, 4)}
	srv := httptest.NewServer(ops)
	defer srv.Close()

	c := New(config.OpsLogConfig{BaseURL: srv.URL, APIKey: "key"}, nil)
	require.NotNil(t, c)
	ctx := context.Background()
	require.NoError(t, c.CreateLog(ctx, Entry{Action: "a"}))
	require.NoError(t, c.CreateLog(ctx, Entry{Action: "b"}))
	assert.Equal(t, int32(1), ops.logins.Load())
	assert.Equal(t, "a", (<-ops.entries).Action)
	assert.Equal(t, "b", (<-ops.entries).Action)
}

func TestNew_NilWithoutBaseURL(t *testing.T) {
	c := New(config.OpsLogConfig{}, nil)
	assert.Nil(t, c)
	c.LogBestEffort(context.Background(), "noop", "info", nil)
}

func TestAuditMiddleware_RecordsWrites(t *testing.T) {
	ops := &fakeOps{entries: make(chan Entry, 4)}
	srv := httptest.NewServer(ops)
	defer srv.Close()
	c := New(config.OpsLogConfig{BaseURL: srv.URL, APIKey: "key", Agent: "crm-test"}, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuditMiddleware(c))
	r.POST("/api/sync/deals", func(ctx *gin.Context) { ctx.Status(http.StatusConflict) })
	r.GET("/api/sync/jobs", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sync/jobs", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/sync/deals", nil))

	e := <-ops.entries
	assert.Equal(t, "crm-test", e.Agent)
	assert.Equal(t, "warn", e.Level)
	assert.Equal(t, "/api/sync/deals", e.Details["path"])
	assert.Len(t, ops.entries, 0)
}
