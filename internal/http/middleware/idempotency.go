package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"

	processingMarker = "PROCESSING"
	lockTTL          = 10 * time.Second
	resultTTL        = 24 * time.Hour
)

type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first successful response for a given
// Idempotency-Key. Only 2xx responses are cached; failures release the key
// so the client can retry. Reusing a key with different parameters is
// rejected with 422. Redis errors fail open.
func Idempotency(client *redis.Client, l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		redisKey := fmt.Sprintf("idempotency:%s:%s", c.Request.URL.Path, key)
		fingerprint := requestFingerprint(c)

		val, err := client.Get(ctx, redisKey).Bytes()
		switch {
		case err == nil:
			if string(val) == processingMarker {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "concurrent request"})
				return
			}
			var stored storedResponse
			if err := json.Unmarshal(val, &stored); err != nil {
				l.Warn().Err(err).Str("key", redisKey).Msg("corrupt idempotency record, ignoring")
				c.Next()
				return
			}
			if stored.Fingerprint != fingerprint {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
					"error": "Idempotency-Key was already used with different parameters",
				})
				return
			}
			c.Header(IdempotencyHitHeader, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		case !errors.Is(err, redis.Nil):
			l.Warn().Err(err).Msg("idempotency lookup failed, processing without it")
			c.Next()
			return
		}

		acquired, err := client.SetNX(ctx, redisKey, processingMarker, lockTTL).Result()
		if err != nil {
			l.Warn().Err(err).Msg("idempotency lock failed, processing without it")
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "concurrent request"})
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 {
			if err := client.Del(ctx, redisKey).Err(); err != nil {
				l.Warn().Err(err).Str("key", redisKey).Msg("failed to release idempotency key")
			}
			return
		}

		payload, err := json.Marshal(storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			l.Error().Err(err).Msg("failed to encode idempotent response")
			return
		}
		if err := client.Set(ctx, redisKey, payload, resultTTL).Err(); err != nil {
			l.Warn().Err(err).Str("key", redisKey).Msg("failed to store idempotent response")
		}
	}
}

// requestFingerprint hashes the method, path and query. Query().Encode
// sorts keys, so parameter order does not matter.
func requestFingerprint(c *gin.Context) string {
	sum := sha256.Sum256([]byte(c.Request.Method + " " + c.Request.URL.Path + "?" + c.Request.URL.Query().Encode()))
	return hex.EncodeToString(sum[:])
}
