package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-zx/xuwei-data/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "xuwei.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleMapping(col string) model.MappingConfig {
	return model.MappingConfig{
		"Sheet1": {HeaderRow: 1, Fields: map[string]string{model.FieldName: col}},
	}
}

func TestStore_PingAndReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "xuwei.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.SaveMapping(context.Background(), "fp", sampleMapping("A")))
	require.NoError(t, s.Close())

	// 重新打开时建表语句可重复执行
	s, err = New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	m, ok, err := s.LoadMapping(context.Background(), "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", m["Sheet1"].Fields[model.FieldName])
}

func TestMappingCache_SaveLoadDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.LoadMapping(ctx, "a.xlsx_100_2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveMapping(ctx, "a.xlsx_100_2", sampleMapping("姓名")))
	got, ok, err := s.LoadMapping(ctx, "a.xlsx_100_2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleMapping("姓名"), got)

	// 覆盖保存
	require.NoError(t, s.SaveMapping(ctx, "a.xlsx_100_2", sampleMapping("名字")))
	got, _, err = s.LoadMapping(ctx, "a.xlsx_100_2")
	require.NoError(t, err)
	assert.Equal(t, "名字", got["Sheet1"].Fields[model.FieldName])

	require.NoError(t, s.DeleteMapping(ctx, "a.xlsx_100_2"))
	_, ok, err = s.LoadMapping(ctx, "a.xlsx_100_2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMappingCache_KeepsNewestEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	total := model.MaxCachedMappings + 3
	for i := 0; i < total; i++ {
		require.NoError(t, s.SaveMapping(ctx, fmt.Sprintf("f%02d", i), sampleMapping("姓名")))
	}
	// 重新保存最早的一条，使其变为最新
	require.NoError(t, s.SaveMapping(ctx, "f03", sampleMapping("姓名")))

	entries, err := s.ListMappings(ctx)
	require.NoError(t, err)
	require.Len(t, entries, model.MaxCachedMappings)
	assert.Equal(t, "f03", entries[0].Fingerprint)
	assert.Equal(t, fmt.Sprintf("f%02d", total-1), entries[1].Fingerprint)

	_, ok, err := s.LoadMapping(ctx, "f02")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entries should be evicted")

	// f03 刚被使用过，再加入新条目时淘汰的是 f04
	require.NoError(t, s.SaveMapping(ctx, "new", sampleMapping("姓名")))
	_, ok, err = s.LoadMapping(ctx, "f03")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = s.LoadMapping(ctx, "f04")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ClearMappings(ctx))
	entries, err = s.ListMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalysisRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.CreateRun(ctx, AnalysisRun{
		ID: "r1", Filename: "a.xlsx", SheetCount: 2, UsableSheets: 2, RecordCount: 10,
		Status: RunStatusSuccess, DurationMS: 12, CreatedAt: base,
	}))
	require.NoError(t, s.CreateRun(ctx, AnalysisRun{
		ID: "r2", Filename: "b.xlsx", Status: RunStatusFailed, ErrorMessage: "文件不存在",
		CreatedAt: base.Add(time.Minute),
	}))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "文件不存在", runs[0].ErrorMessage)
	assert.Equal(t, 10, runs[1].RecordCount)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	counts, err := s.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{RunStatusSuccess: 1, RunStatusFailed: 1}, counts)
}
