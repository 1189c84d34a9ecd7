package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRateLimitResponse(t *testing.T) {
	limited := rateLimit(zap.NewNop(), 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/rooms/room/messages", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		limited.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusOK, call().Code)
	rec := call()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, ErrTooManyRoomRequests, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "/route")
}
