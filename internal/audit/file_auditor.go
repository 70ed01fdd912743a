// Package audit keeps an append-only trail of statements re-executed
// through replay tokens.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/port"
)

type requestIDKey struct{}

// WithRequestID tags ctx so audit lines can be joined with access logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// line is the NDJSON form of an audit record.
type line struct {
	Timestamp    string  `json:"ts"`
	RequestID    string  `json:"request_id,omitempty"`
	Operation    string  `json:"operation"`
	Statement    string  `json:"statement"`
	RowsReturned int     `json:"rows_returned"`
	DurationMS   int64   `json:"duration_ms"`
	Error        *string `json:"error"`
}

// FileAuditor writes one JSON object per replay.
type FileAuditor struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder
	now func() time.Time
}

// NewFileAuditor opens path for appending, creating it if needed.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return newAuditor(f), nil
}

func newAuditor(w io.WriteCloser) *FileAuditor {
	return &FileAuditor{
		w:   w,
		enc: json.NewEncoder(w),
		now: time.Now,
	}
}

func (a *FileAuditor) Record(ctx context.Context, entry port.AuditEntry) {
	l := line{
		Timestamp:    a.now().UTC().Format(time.RFC3339Nano),
		RequestID:    requestIDFromCtx(ctx),
		Operation:    entry.Operation,
		Statement:    entry.Statement,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		l.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(l) // best-effort; audit I/O never fails a replay
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w.Close()
}
