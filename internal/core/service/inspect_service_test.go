package service

import (
	"context"
	"testing"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInspectService(store *memStore, available bool, inst *recordingInst) *InspectService {
	codec := &mockCodec{}
	agg := domain.NewAggregator(codec, domain.NewFrameClassifier(nil), domain.DefaultStackPolicy(), domain.GroupByStatement)
	svc := NewInspectService(agg, store, available, testLogger(), nil, inst)
	svc.newKey = func() string { return "key-1" }
	return svc
}

func TestInspectService_StoresResult(t *testing.T) {
	store := newMemStore()
	inst := &recordingInst{}
	svc := newInspectService(store, true, inst)

	records := []domain.QueryRecord{
		{Statement: "SELECT * FROM t WHERE id = $1", Params: domain.PositionalParams(int64(1)), Duration: 10 * time.Millisecond},
		{Statement: "SELECT * FROM t WHERE id = $1", Params: domain.PositionalParams(int64(2)), Duration: 20 * time.Millisecond},
		{Statement: "SELECT 2", Duration: 5 * time.Millisecond},
	}

	report, err := svc.Inspect(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, "key-1", report.Key)
	assert.Equal(t, "3 queries", report.Subtitle)
	assert.Equal(t, 35*time.Millisecond, report.Result.TotalSQLTime)
	assert.Equal(t, 15*time.Millisecond, report.Result.AvoidableTime)
	assert.Equal(t, "ok:SELECT * FROM t WHERE id = $1", report.Result.Groups[0].Executions[0].Token)
	assert.Empty(t, report.Result.Groups[1].Executions[0].Token, "no params, no token")
	assert.Equal(t, 1, inst.inspections)

	stored, err := store.Get("key-1")
	require.NoError(t, err)
	assert.Equal(t, report.Result, stored)
}

func TestInspectService_UnavailableSubtitle(t *testing.T) {
	svc := newInspectService(newMemStore(), false, &recordingInst{})

	report, err := svc.Inspect(context.Background(), []domain.QueryRecord{{Statement: "SELECT 1", Duration: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Unavailable", report.Subtitle)
}

func TestInspectService_EmptyInput(t *testing.T) {
	svc := newInspectService(newMemStore(), true, &recordingInst{})

	report, err := svc.Inspect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "0 queries", report.Subtitle)
	assert.Empty(t, report.Result.Groups)
}

func TestInspectService_MalformedRecordStoresNothing(t *testing.T) {
	store := newMemStore()
	inst := &recordingInst{}
	svc := newInspectService(store, true, inst)

	_, err := svc.Inspect(context.Background(), []domain.QueryRecord{
		{Statement: "SELECT 1", Duration: 1},
		{Statement: "  ", Duration: 1},
	})
	require.ErrorIs(t, err, domain.ErrMalformedRecord)
	assert.Contains(t, err.Error(), "record 2")
	assert.Empty(t, store.entries)
	assert.Zero(t, inst.inspections)
}

func TestInspectService_DefaultKeyIsUUID(t *testing.T) {
	agg := domain.NewAggregator(nil, nil, domain.DefaultStackPolicy(), "")
	svc := NewInspectService(agg, newMemStore(), true, testLogger(), nil, nil)

	a, err := svc.Inspect(context.Background(), nil)
	require.NoError(t, err)
	b, err := svc.Inspect(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, a.Key, 36)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestInspectService_Result(t *testing.T) {
	store := newMemStore()
	svc := newInspectService(store, true, &recordingInst{})

	report, err := svc.Inspect(context.Background(), []domain.QueryRecord{{Statement: "SELECT 1", Duration: time.Millisecond}})
	require.NoError(t, err)

	got, err := svc.Result(context.Background(), report.Key)
	require.NoError(t, err)
	assert.Equal(t, report.Result, got)

	_, err = svc.Result(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
