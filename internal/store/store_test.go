package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/canary/internal/correlate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "canary.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(parent, invocation string, hasError bool) correlate.Record {
	return correlate.Record{
		ParentInvocationID: parent,
		InvocationID:       invocation,
		ServiceID:          "svc-1",
		InstanceID:         "inst-1",
		MinerUID:           "42",
		MinerHotkey:        "5Gabc",
		HasError:           hasError,
		CreatedAt:          time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestSaveAndLoadBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := []correlate.Record{
		record("p1", "inv-a", false),
		record("p1", "inv-b", true),
	}
	require.NoError(t, s.SaveBatch(ctx, batch))

	got, err := s.LoadBatch(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "inv-a", got[0].InvocationID)
	assert.False(t, got[0].HasError)
	assert.Equal(t, "inv-b", got[1].InvocationID)
	assert.True(t, got[1].HasError)
	assert.Equal(t, "5Gabc", got[1].MinerHotkey)
	assert.True(t, got[1].CreatedAt.Equal(batch[1].CreatedAt))
}

func TestSaveBatchEmptyIsNoOp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, nil))

	count, err := s.CountRecords(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveBatchAllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// The duplicate key makes the second insert fail; the first insert
	// must roll back with it.
	batch := []correlate.Record{
		record("p1", "inv-a", false),
		record("p1", "inv-a", true),
	}
	require.Error(t, s.SaveBatch(ctx, batch))

	count, err := s.CountRecords(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, count, "failed batch must not commit partially")
}

func TestCountRecordsScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []correlate.Record{record("p1", "inv-a", false)}))
	require.NoError(t, s.SaveBatch(ctx, []correlate.Record{record("p2", "inv-b", false)}))

	total, err := s.CountRecords(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	scoped, err := s.CountRecords(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, scoped)
}
