// Package logging provides the process logger and request-scoped log entries.
package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "requestID"

type contextKeyType struct{}

var contextKey = &contextKeyType{}

// Init sets up the text formatter and the level for all log statements. An unknown level
// falls back to info and is reported in the returned error.
func Init(level string) error {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.SetLevel(logrus.InfoLevel)
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// Default returns a logger without a request id.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ContextWithLogger returns ctx carrying a logger tagged with requestID, or a new id when
// requestID is empty. A context that already has a logger is returned unchanged.
func ContextWithLogger(ctx context.Context, requestID string) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else if rlog, ok := ctx.Value(contextKey).(*logrus.Entry); ok {
		return ctx, rlog
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	rlog := logrus.WithField(requestIDKey, requestID)
	return context.WithValue(ctx, contextKey, rlog), rlog
}

// FromContext returns the request logger, or the default logger if ctx has none.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return Default()
	}
	if rlog, ok := ctx.Value(contextKey).(*logrus.Entry); ok {
		return rlog
	}
	return Default()
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if id, ok := FromContext(ctx).Data[requestIDKey].(string); ok {
		return id
	}
	return ""
}

// Middleware installs a request logger, echoes the request id and writes one access line
// per request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, rlog := ContextWithLogger(c.Request.Context(), c.GetHeader(RequestIDHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, RequestID(ctx))

		c.Next()

		entry := rlog.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}
