package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader carries the client-chosen key of a start request
	IdempotencyKeyHeader = "X-Idempotency-Key"

	// IdempotencyKeyPrefix namespaces records in Redis
	IdempotencyKeyPrefix = "idempotency:"
)

type idempotencyStatus string

const (
	statusProcessing idempotencyStatus = "processing"
	statusCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
}

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Redis redis.Cmdable
	// TTL of completed records
	TTL time.Duration
	// ProcessingTTL bounds how long a crashed request blocks its key
	ProcessingTTL time.Duration
}

// IdempotencyMiddleware replays the stored response when a start request is retried with the same key.
// Requests without a key pass through. Redis errors fail open.
func IdempotencyMiddleware(cfg *IdempotencyConfig) gin.HandlerFunc {
	ttl := 5 * time.Minute
	processingTTL := 60 * time.Second
	if cfg.TTL > 0 {
		ttl = cfg.TTL
	}
	if cfg.ProcessingTTL > 0 {
		processingTTL = cfg.ProcessingTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
			// a truncated body would hash to the wrong key
			if err != nil {
				c.Next()
				return
			}
		}
		hash := requestHash(c, body)
		redisKey := IdempotencyKeyPrefix + key
		ctx := c.Request.Context()

		record := &idempotencyRecord{Status: statusProcessing, RequestHash: hash}
		raw, _ := json.Marshal(record)
		acquired, err := cfg.Redis.SetNX(ctx, redisKey, raw, processingTTL).Result()
		if err != nil {
			c.Next()
			return
		}

		if !acquired {
			existing, err := getRecord(c, cfg.Redis, redisKey)
			if err != nil {
				c.Next()
				return
			}
			switch {
			case existing.RequestHash != hash:
				response.Error(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with a different request", "")
			case existing.Status == statusProcessing:
				response.Error(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed", "")
			default:
				c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
			}
			c.Abort()
			return
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		// Server errors may succeed on retry, so the key is released instead of cached
		if rw.Status() >= http.StatusInternalServerError {
			cfg.Redis.Del(ctx, redisKey)
			return
		}

		record.Status = statusCompleted
		record.ResponseCode = rw.Status()
		record.ResponseBody = rw.body.String()
		raw, _ = json.Marshal(record)
		cfg.Redis.Set(ctx, redisKey, raw, ttl)
	}
}

func getRecord(c *gin.Context, client redis.Cmdable, key string) (*idempotencyRecord, error) {
	raw, err := client.Get(c.Request.Context(), key).Bytes()
	if err != nil {
		return nil, err
	}
	var record idempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func requestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte(c.Request.URL.Path))
	h.Write([]byte(c.GetString(ContextKeyAgentID)))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
