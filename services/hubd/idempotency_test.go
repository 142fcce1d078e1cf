package hubd

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stablecore/integrations/eventlog"
)

func TestIdempotencyLogsFailedRecord(t *testing.T) {
	// The idempotency table is deliberately left unmigrated so inserts fail.
	db, err := eventlog.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	var calls atomic.Int32
	handler := newIdempotency(db, logger).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/positions", nil)
		req.Header.Set(headerIdempotencyKey, "retry-me")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get(headerReplayed))
	}

	require.EqualValues(t, 2, calls.Load(), "an unstored key cannot be replayed")
	require.Contains(t, logs.String(), "idempotency record not stored")
	require.Contains(t, logs.String(), `"key":"retry-me"`)
	require.Contains(t, logs.String(), `"level":"WARN"`)
}

func TestIdempotencyStoresAndReplays(t *testing.T) {
	db, err := eventlog.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, MigrateIdempotency(db))

	var logs bytes.Buffer
	var calls atomic.Int32
	handler := newIdempotency(db, slog.New(slog.NewJSONHandler(&logs, nil))).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusCreated, map[string]int32{"call": calls.Load()})
	}))

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/positions", nil)
		req.Header.Set(headerIdempotencyKey, "once")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, bodies[0], bodies[1])
	require.Empty(t, logs.String())
}
