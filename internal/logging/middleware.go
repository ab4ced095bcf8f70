// ABOUTME: HTTP request logging middleware.
// ABOUTME: Captures grid, action, outcome, status, duration and bodies, and stores them in the database.

package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/store"
)

const maxBodySize = 10 * 1024 // 10KB limit for body capture

// responseWriter records the status and the first maxBodySize bytes of the
// response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	size       int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.statusCode = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	if room := maxBodySize - rw.body.Len(); room > 0 {
		rw.body.Write(b[:min(len(b), room)])
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// bodyForLog returns the captured body, or a size marker when the body is
// compressed or carries grid data. Grid rows passed an access check for
// the caller and must not be readable from the log.
func (rw *responseWriter) bodyForLog(gridResponse bool) string {
	if enc := rw.Header().Get("Content-Encoding"); enc != "" {
		return fmt.Sprintf("<%s body, %d bytes>", enc, rw.size)
	}
	if gridResponse {
		return fmt.Sprintf("<grid response, %d bytes>", rw.size)
	}
	return rw.body.String()
}

// skipLogging reports paths that are never logged.
func skipLogging(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/admin/")
}

// Middleware logs requests to the database. A nil store disables logging.
func Middleware(s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil || skipLogging(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			requestBody := captureBody(r)
			ctx, outcome := withOutcome(r.Context())
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}

			start := time.Now()
			next.ServeHTTP(wrapped, r.WithContext(ctx))
			duration := time.Since(start)

			entry := &store.RequestLog{
				GridName:     outcome.Grid,
				Action:       outcome.Action,
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   wrapped.statusCode,
				DurationMs:   int(duration.Milliseconds()),
				UserID:       auth.UserNameFromHeader(r.Header.Get("Authorization")),
				IPAddress:    clientIP(r),
				UserAgent:    r.Header.Get("User-Agent"),
				Error:        outcome.Error,
				RequestBody:  requestBody,
				ResponseBody: wrapped.bodyForLog(outcome.Grid != ""),
			}
			// Requests the dispatcher never saw still get their grid name
			// from the form.
			if entry.GridName == "" {
				entry.GridName = GetGridFromRequest(r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), requestBody)
			}
			if entry.UserID == auth.GuestName {
				entry.UserID = ""
			}

			// Fire and forget
			go func() {
				if err := s.LogRequest(entry); err != nil {
					log.Printf("logging: failed to store request log: %v", err)
				}
			}()
		})
	}
}

// captureBody reads up to maxBodySize bytes of the request body and puts
// them back in front of the rest for the handler.
func captureBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return ""
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	return string(head)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return r.RemoteAddr
}
