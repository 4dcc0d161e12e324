package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type logFieldsKey struct{}

// logFields collects request-scoped attributes for the completion line.
type logFields struct {
	mu sync.Mutex
	kv map[string]string
}

// LoggingMiddleware emits a "request started" line and a "request completed"
// line carrying the status, duration, bytes written, and any fields handlers
// attached with AddLogField. Completed lines for 5xx replies are logged at
// error level and 4xx at warn.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := GetRequestID(r.Context())

			fields := &logFields{kv: make(map[string]string)}
			ctx := context.WithValue(r.Context(), logFieldsKey{}, fields)
			rw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			logger.LogAttrs(ctx, slog.LevelInfo, "request started",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(rw, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rw.bytes),
			}
			if rw.flushed {
				attrs = append(attrs, slog.Bool("streamed", true))
			}
			attrs = append(attrs, fields.attrs()...)

			logger.LogAttrs(ctx, completionLevel(rw.statusCode), "request completed", attrs...)
		})
	}
}

func completionLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func (f *logFields) set(key, value string) {
	f.mu.Lock()
	f.kv[key] = value
	f.mu.Unlock()
}

// attrs returns the fields sorted by key.
func (f *logFields) attrs() []slog.Attr {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.kv))
	for k := range f.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.String(k, f.kv[k]))
	}
	return out
}

// loggingResponseWriter records what was sent so the completion line can
// report it. It must stay an http.Flusher for SSE replies.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	bytes       int64
	flushed     bool
}

func (rw *loggingResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggingResponseWriter) Write(p []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += int64(n)
	return n, err
}

func (rw *loggingResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.flushed = true
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// AddLogField attaches key=value to the request's completion log line. Empty
// values are ignored, as are calls outside LoggingMiddleware.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if fields, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		fields.set(key, value)
	}
}

// AddLogFields attaches several fields at once.
func AddLogFields(ctx context.Context, kv map[string]string) {
	for k, v := range kv {
		AddLogField(ctx, k, v)
	}
}

// AddError records err under the "error" field.
func AddError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	AddLogField(ctx, "error", err.Error())
}
