package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newEngine(production bool, origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID(), Logger(zerolog.Nop()), Recovery(zerolog.Nop(), production), CORS(origins))
	engine.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	engine.GET("/panic", func(c *gin.Context) {
		panic("disk on fire")
	})
	return engine
}

func TestRequestIDPropagates(t *testing.T) {
	engine := newEngine(false, nil)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	require.Equal(t, "abc-123", rec.Body.String())

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRecoveryHidesDetailInProduction(t *testing.T) {
	for _, tc := range []struct {
		production bool
		message    string
	}{
		{production: true, message: "Something went wrong"},
		{production: false, message: "disk on fire"},
	} {
		rec := httptest.NewRecorder()
		newEngine(tc.production, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Internal Server Error", body["error"])
		require.Equal(t, tc.message, body["message"])
	}
}

func TestCORS(t *testing.T) {
	engine := newEngine(false, []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
