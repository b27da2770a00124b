package httpadapter

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// maxInboundRequestIDLen caps caller-supplied correlation IDs before they
// reach the logs.
const maxInboundRequestIDLen = 64

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if len(requestID) > maxInboundRequestIDLen {
			requestID = ""
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

// tenantTag is installed by the access-log middleware and filled in by the
// handlers once the request body reveals the workspace/bot pair. Tenancy
// lives in payloads rather than URLs here, so without the tag the access log
// could not attribute traffic to a workspace.
type tenantTag struct {
	workspaceID string
	botID       string
}

type tenantTagContextKey struct{}

func tagTenant(ctx context.Context, workspaceID, botID string) {
	if tag, ok := ctx.Value(tenantTagContextKey{}).(*tenantTag); ok {
		tag.workspaceID = workspaceID
		tag.botID = botID
	}
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tag := &tenantTag{}
		r = r.WithContext(context.WithValue(r.Context(), tenantTagContextKey{}, tag))
		tap := &responseTap{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(tap, r)

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}

		logAttrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", tap.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", tap.bytesWritten,
			"remote_addr", remoteAddr,
			"user_agent", r.UserAgent(),
		}
		if tag.workspaceID != "" {
			logAttrs = append(logAttrs, "workspace_id", tag.workspaceID)
		}
		if tag.botID != "" {
			logAttrs = append(logAttrs, "bot_id", tag.botID)
		}

		slog.Log(r.Context(), accessLogLevel(tap.statusCode), "http_request", logAttrs...)
	})
}

func accessLogLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// responseTap records the status and body size that went out on the wire.
type responseTap struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (t *responseTap) WriteHeader(statusCode int) {
	t.statusCode = statusCode
	t.ResponseWriter.WriteHeader(statusCode)
}

func (t *responseTap) Write(b []byte) (int, error) {
	n, err := t.ResponseWriter.Write(b)
	t.bytesWritten += n
	return n, err
}

func (t *responseTap) Flush() {
	if flusher, ok := t.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (t *responseTap) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := t.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
