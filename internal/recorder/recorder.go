// Package recorder collects the queries executed while serving one request.
// A Recorder travels in the request context; anything that runs SQL on that
// context can append to it.
package recorder

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
)

// MaxFrames bounds the captured call stack.
const MaxFrames = 32

type ctxKey struct{}

// Recorder accumulates QueryRecords. It is safe for concurrent use because a
// handler may fan out queries across goroutines sharing the request context.
type Recorder struct {
	label string

	mu      sync.Mutex
	records []domain.QueryRecord
}

// New creates a Recorder. label is copied into the Context field of every
// record that does not set its own.
func New(label string) *Recorder {
	return &Recorder{label: label}
}

// NewContext returns ctx carrying r.
func NewContext(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the Recorder in ctx, if any.
func FromContext(ctx context.Context) (*Recorder, bool) {
	r, ok := ctx.Value(ctxKey{}).(*Recorder)
	return r, ok && r != nil
}

// Add appends rec.
func (r *Recorder) Add(rec domain.QueryRecord) {
	if rec.Context == "" {
		rec.Context = r.label
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of everything recorded so far, in arrival order.
func (r *Recorder) Records() []domain.QueryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.QueryRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Record appends a query to the Recorder in ctx, capturing the caller's
// stack. It is a no-op when ctx carries no Recorder.
func Record(ctx context.Context, statement string, params domain.Params, duration time.Duration) {
	r, ok := FromContext(ctx)
	if !ok {
		return
	}
	r.Add(domain.QueryRecord{
		Statement: statement,
		Params:    params,
		Duration:  duration,
		Stack:     CaptureStack(1),
	})
}

// CaptureStack returns the calling goroutine's stack, innermost frame first.
// skip counts frames above the caller of CaptureStack.
func CaptureStack(skip int) []domain.Frame {
	pcs := make([]uintptr, MaxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]domain.Frame, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, domain.Frame{
			Function: f.Function,
			File:     f.File,
			Line:     f.Line,
		})
		if !more {
			break
		}
	}
	return out
}
