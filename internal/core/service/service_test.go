package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock TokenCodec ---

// mockCodec encodes tokens as "ok:<statement>". Anything else is invalid.
type mockCodec struct {
	policy domain.ReadOnlyPolicy
	params domain.Params
}

func (m *mockCodec) Sign(statement string, params domain.Params) (string, bool) {
	if !m.policy.Signable(statement, params) {
		return "", false
	}
	return "ok:" + statement, true
}

func (m *mockCodec) Verify(token string) (domain.Query, error) {
	stmt, ok := strings.CutPrefix(token, "ok:")
	if !ok {
		return domain.Query{}, fmt.Errorf("%w: bad prefix", domain.ErrInvalidToken)
	}
	if err := m.policy.Validate(stmt); err != nil {
		return domain.Query{}, err
	}
	return domain.Query{Statement: stmt, Params: m.params}, nil
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	executeCalled bool
	lastSQL       string
	lastParams    domain.Params
	result        *domain.ResultSet
	err           error
}

func (m *mockExecutor) Execute(_ context.Context, statement string, params domain.Params) (*domain.ResultSet, error) {
	m.executeCalled = true
	m.lastSQL = statement
	m.lastParams = params
	return m.result, m.err
}

// --- mock ResultStore ---

type memStore struct {
	mu      sync.Mutex
	entries map[string]*domain.AggregationResult
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*domain.AggregationResult{}}
}

func (m *memStore) Put(key string, r *domain.AggregationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = r.Clone()
}

func (m *memStore) Get(key string) (*domain.AggregationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("result %q: %w", key, domain.ErrNotFound)
	}
	return r.Clone(), nil
}

// --- recording auditor ---

type recordingAuditor struct {
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) { a.entries = append(a.entries, e) }
func (a *recordingAuditor) Close() error                                { return nil }

// --- recording instrumentation ---

type recordingInst struct {
	port.NoopInstrumentation
	inspections  int
	rejections   []string
	replayErrors []string
}

func (r *recordingInst) RecordInspection(context.Context, int, float64, float64) { r.inspections++ }
func (r *recordingInst) IncrementTokenRejections(_ context.Context, reason string) {
	r.rejections = append(r.rejections, reason)
}
func (r *recordingInst) IncrementReplayErrors(_ context.Context, op string) {
	r.replayErrors = append(r.replayErrors, op)
}
