package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

func logOnce(t *testing.T, path string, status int) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{Level: "info", Output: &buf})

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if buf.Len() == 0 {
		return nil, rec
	}
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry, rec
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	entry, rec := logOnce(t, "/v1/messages?sender=secret", http.StatusAccepted)
	require.NotNil(t, entry)
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "/v1/messages", entry["path"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestRequestLoggerLevels(t *testing.T) {
	entry, _ := logOnce(t, "/v1/messages", http.StatusServiceUnavailable)
	assert.Equal(t, "ERROR", entry["level"])

	entry, _ = logOnce(t, "/v1/messages", http.StatusBadRequest)
	assert.Equal(t, "WARN", entry["level"])

	entry, _ = logOnce(t, "/health", http.StatusOK)
	assert.Nil(t, entry, "health probes log at debug")
}
