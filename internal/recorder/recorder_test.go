package recorder

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	r := New("GET /users")
	got, ok := FromContext(NewContext(context.Background(), r))
	require.True(t, ok)
	assert.Same(t, r, got)
}

func TestRecorder_AddKeepsOrderAndLabel(t *testing.T) {
	r := New("GET /users")
	r.Add(domain.QueryRecord{Statement: "SELECT 1", Duration: time.Millisecond})
	r.Add(domain.QueryRecord{Statement: "SELECT 2", Duration: 2 * time.Millisecond, Context: "custom"})

	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "SELECT 1", recs[0].Statement)
	assert.Equal(t, "GET /users", recs[0].Context)
	assert.Equal(t, "custom", recs[1].Context)
	assert.Equal(t, 2, r.Len())
}

func TestRecorder_RecordsReturnsCopy(t *testing.T) {
	r := New("")
	r.Add(domain.QueryRecord{Statement: "SELECT 1"})

	recs := r.Records()
	recs[0].Statement = "changed"
	assert.Equal(t, "SELECT 1", r.Records()[0].Statement)
}

func TestRecord_CapturesCaller(t *testing.T) {
	r := New("")
	ctx := NewContext(context.Background(), r)

	Record(ctx, "SELECT $1", domain.PositionalParams(int64(1)), 3*time.Millisecond)

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 3*time.Millisecond, recs[0].Duration)
	require.NotEmpty(t, recs[0].Stack)
	assert.True(t, strings.HasSuffix(recs[0].Stack[0].Function, "TestRecord_CapturesCaller"),
		"innermost frame should be the caller, got %s", recs[0].Stack[0].Function)
	assert.True(t, strings.HasSuffix(recs[0].Stack[0].File, "recorder_test.go"))
}

func TestRecord_NoRecorderIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Record(context.Background(), "SELECT 1", domain.Params{}, 0)
	})
}

func TestCaptureStack_Bounded(t *testing.T) {
	var deep func(n int) []domain.Frame
	deep = func(n int) []domain.Frame {
		if n == 0 {
			return CaptureStack(0)
		}
		return deep(n - 1)
	}
	assert.LessOrEqual(t, len(deep(MaxFrames*2)), MaxFrames)
}

func TestRecorder_ConcurrentAdd(t *testing.T) {
	r := New("")
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				r.Add(domain.QueryRecord{Statement: "SELECT 1"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, r.Len())
}
