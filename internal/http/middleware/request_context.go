package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/wellchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

const RequestIDHeader = "X-Request-ID"

// AttachRequestContext seeds RequestData with a request id and the active trace id.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		ctx := c.Request.Context()
		rd := &ctxutil.RequestData{RequestID: reqID}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			rd.TraceID = sc.TraceID().String()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(ctx, rd))
		c.Header(RequestIDHeader, reqID)
		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("Middleware", "RequestLogger")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			kv = append(kv, "request_id", rd.RequestID)
			if rd.TraceID != "" {
				kv = append(kv, "trace_id", rd.TraceID)
			}
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request failed", kv...)
		case c.Writer.Status() >= 400:
			log.Warn("request rejected", kv...)
		default:
			log.Debug("request served", kv...)
		}
	}
}
