package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithTimeout(5*time.Second))
}

func TestUpload(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "名单.xlsx", hdr.Filename)
		assert.Equal(t, "abc", string(data))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "file_id": "id-1", "filename": "名单.xlsx", "size": 3,
			"sheets": []model.SheetInfo{{Name: "A", Rows: 2, Columns: 3}}, "sheet_count": 1,
			"fingerprint": "名单.xlsx_3_1",
		})
	})

	info, err := c.Upload(context.Background(), "名单.xlsx", bytes.NewBufferString("abc"))
	require.NoError(t, err)
	assert.Equal(t, "id-1", info.FileID)
	assert.Equal(t, []string{"A"}, info.SheetNames())
	assert.Equal(t, "名单.xlsx_3_1", info.Fingerprint)
}

func TestServerReportedError(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "sheet 不存在"})
	})

	_, err := c.Preview(context.Background(), "id", "A", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeServerReported, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "sheet 不存在")
}

func TestErrorStatusKeepsServerCode(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "至少需要 2 个有数据的 Sheet", "code": apperr.CodeInsufficientSheets,
		})
	})

	_, err := c.Compare(context.Background(), "id", model.MappingConfig{})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInsufficientSheets), "%v", err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "至少需要 2 个")
}

func TestErrorStatusWithoutCodeIsNetworkError(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.Compare(context.Background(), "id", model.MappingConfig{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNetwork, apperr.CodeOf(err))
	assert.True(t, IsStatus(err, http.StatusBadGateway))
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).Columns(context.Background(), "id", "A", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNetwork, apperr.CodeOf(err))
}

func TestInvalidJSON(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	_, err := c.Analyze(context.Background(), "id", model.MappingConfig{})
	assert.Equal(t, apperr.CodeNetwork, apperr.CodeOf(err))
}

func TestAnalyzeAndColumns(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id", body["file_id"])

		switch r.URL.Path {
		case "/api/columns":
			assert.EqualValues(t, 1, body["header_row"])
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true, "columns": []string{"姓名"}, "suggested": map[string]string{"姓名": "姓名"},
			})
		case "/api/analyze":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"results": []model.SheetResult{{Name: "A", Success: true, RecordCount: 1,
					Records: []model.Record{{Row: 3, Values: map[string]string{"姓名": "张三"}}}}},
			})
		default:
			http.NotFound(w, r)
		}
	})

	cols, err := c.Columns(context.Background(), "id", "A", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"姓名"}, cols.Columns)
	assert.Equal(t, "姓名", cols.Suggested["姓名"])

	results, err := c.Analyze(context.Background(), "id", model.MappingConfig{"A": {Fields: map[string]string{"姓名": "姓名"}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "张三", results[0].Records[0].Get("姓名"))
}

func TestExport(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "detailed", body["mode"])
		assert.Equal(t, "diff", body["filter"])
		w.Header().Set("Content-Type", export.ModeDetailed.ContentType())
		w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''%E7%BB%93%E6%9E%9C_20260101_000000.csv`)
		_, _ = w.Write([]byte("a,b\n"))
	})

	f, err := c.Export(context.Background(), "id", model.MappingConfig{}, export.ModeDetailed, compare.FilterDiff, "结果")
	require.NoError(t, err)
	assert.Equal(t, "结果_20260101_000000.csv", f.Name)
	assert.Equal(t, "a,b\n", string(f.Data))
}

func TestMappingCache(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	stored := map[string]model.MappingConfig{}
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := r.URL.Path[len("/api/mapping-cache"):]
		switch r.Method {
		case http.MethodGet:
			m, ok := stored[key]
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found", "code": apperr.CodeNotFound})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "mappings": m})
		case http.MethodPut:
			var body struct {
				Mappings model.MappingConfig `json:"mappings"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			stored[key] = body.Mappings
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		case http.MethodDelete:
			if key == "" {
				stored = map[string]model.MappingConfig{}
			}
			delete(stored, key)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		}
	})
	ctx := context.Background()

	_, ok, err := c.LoadMapping(ctx, "f.xlsx_1_2")
	require.NoError(t, err)
	assert.False(t, ok)

	cfg := model.MappingConfig{"A": {HeaderRow: 1, Fields: map[string]string{"姓名": "B"}}}
	require.NoError(t, c.SaveMapping(ctx, "f.xlsx_1_2", cfg))

	got, ok, err := c.LoadMapping(ctx, "f.xlsx_1_2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cfg, got)

	require.NoError(t, c.DeleteMapping(ctx, "f.xlsx_1_2"))
	_, ok, err = c.LoadMapping(ctx, "f.xlsx_1_2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ClearMappings(ctx))
}
