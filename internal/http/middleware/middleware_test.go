package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newIdempotentEngine(t *testing.T, status *int, calls *int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.POST("/entry", Idempotency(client, zerolog.Nop()), func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls})
	})
	return r, mr
}

func postEntry(r http.Handler, key string) *httptest.ResponseRecorder {
	return postEntryTo(r, "/entry?plate=ABC123&parkingLot=LOT1", key)
}

func postEntryTo(r http.Handler, target, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysSuccessfulResponse(t *testing.T) {
	status, calls := http.StatusOK, 0
	r, mr := newIdempotentEngine(t, &status, &calls)

	first := postEntry(r, "key-1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"call":1}`, first.Body.String())
	assert.Empty(t, first.Header().Get(IdempotencyHitHeader))

	second := postEntry(r, "key-1")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, `{"call":1}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get(IdempotencyHitHeader))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, calls)

	ttl := mr.TTL("idempotency:/entry:key-1")
	assert.Equal(t, 24*time.Hour, ttl)

	other := postEntry(r, "key-2")
	assert.JSONEq(t, `{"call":2}`, other.Body.String())
}

func TestIdempotency_KeyReusedWithDifferentQuery(t *testing.T) {
	status, calls := http.StatusOK, 0
	r, _ := newIdempotentEngine(t, &status, &calls)

	require.Equal(t, http.StatusOK, postEntry(r, "key-1").Code)

	w := postEntryTo(r, "/entry?plate=XYZ999&parkingLot=LOT1", "key-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, w.Header().Get(IdempotencyHitHeader))
	assert.Equal(t, 1, calls)

	reordered := postEntryTo(r, "/entry?parkingLot=LOT1&plate=ABC123", "key-1")
	assert.Equal(t, http.StatusOK, reordered.Code)
	assert.Equal(t, "true", reordered.Header().Get(IdempotencyHitHeader))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_FailureReleasesKey(t *testing.T) {
	status, calls := http.StatusServiceUnavailable, 0
	r, mr := newIdempotentEngine(t, &status, &calls)

	first := postEntry(r, "key-1")
	assert.Equal(t, http.StatusServiceUnavailable, first.Code)
	assert.False(t, mr.Exists("idempotency:/entry:key-1"))

	status = http.StatusOK
	second := postEntry(r, "key-1")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_InFlightIsConflict(t *testing.T) {
	status, calls := http.StatusOK, 0
	r, mr := newIdempotentEngine(t, &status, &calls)
	require.NoError(t, mr.Set("idempotency:/entry:key-1", processingMarker))

	w := postEntry(r, "key-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	status, calls := http.StatusOK, 0
	r, _ := newIdempotentEngine(t, &status, &calls)

	postEntry(r, "")
	postEntry(r, "")
	assert.Equal(t, 2, calls)
}

func TestIdempotency_RedisDownFailsOpen(t *testing.T) {
	// Nothing listens on port 1.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	r := gin.New()
	r.POST("/entry", Idempotency(client, zerolog.Nop()), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"call": calls})
	})

	w := postEntry(r, "key-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
}

func TestRecoverer(t *testing.T) {
	r := gin.New()
	r.Use(Recoverer(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
