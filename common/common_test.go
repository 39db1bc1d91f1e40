package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	original := time.Date(2024, 6, 1, 12, 30, 45, 0, time.UTC)
	formatted := FormatTimestamp(original)
	assert.Equal(t, "2024-06-01T12:30:45Z", formatted)

	parsed, err := ParseTimestamp(formatted)
	require.NoError(t, err)
	assert.True(t, original.Equal(parsed))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "[empty]", MaskSecret(""))
	assert.Equal(t, "****rt", MaskSecret("short"))
	assert.Equal(t, "supe****alue", MaskSecret("supersecretvalue"))
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("GeneratesID", func(t *testing.T) {
		var gotID string
		handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotID, _ = r.Context().Value(RequestIDCtxKey).(string)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, gotID)
		assert.Equal(t, gotID, rec.Header().Get("X-Request-ID"))
	})

	t.Run("PreservesProvidedID", func(t *testing.T) {
		var gotID string
		handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotID, _ = r.Context().Value(RequestIDCtxKey).(string)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-123")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "req-123", gotID)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggerFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	logger := Logger(req.Context())
	require.NotNil(t, logger)
}
