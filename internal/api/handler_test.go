package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/client"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/service"
	"github.com/peter-zx/xuwei-data/internal/store"
	"github.com/peter-zx/xuwei-data/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func personMappings() model.MappingConfig {
	return model.MappingConfig{
		"名单A": {HeaderRow: 1, Fields: map[string]string{
			model.FieldName: "姓名", model.FieldPhone: "联系电话", model.FieldDisabilityNo: "残疾证号",
		}},
		"名单B": {HeaderRow: 0, Fields: map[string]string{
			model.FieldName: "姓名", model.FieldPhone: "电话", model.FieldDisabilityNo: "C",
		}},
	}
}

type env struct {
	router *gin.Engine
	store  *store.Store
}

func newEnv(t *testing.T) env {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := service.New(service.WithRunStore(st))
	t.Cleanup(func() { _ = svc.Close() })

	r := gin.New()
	NewHandler(svc, WithMappingCache(st), WithExportLabel("名单整理")).RegisterRoutes(r.Group("/api"))
	return env{router: r, store: st}
}

func (e env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e env) upload(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func uploadFixture(t *testing.T, e env) string {
	t.Helper()
	w := e.upload(t, "名单.xlsx", testutil.XLSX(t, testutil.PersonSheets()...))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["file_id"].(string)
}

func TestUpload(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	data := testutil.XLSX(t, testutil.PersonSheets()...)
	w := e.upload(t, "名单.xlsx", data)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["file_id"])
	assert.EqualValues(t, 2, body["sheet_count"])
	assert.Equal(t, model.Fingerprint("名单.xlsx", int64(len(data)), 2), body["fingerprint"])
}

func TestUpload_Errors(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	w := e.upload(t, "名单.csv", []byte("a,b"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, apperr.CodeValidation, body["code"])

	w = e.do(t, http.MethodPost, "/api/upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewAndColumns(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	id := uploadFixture(t, e)

	w := e.do(t, http.MethodPost, "/api/sheet-preview", gin.H{"file_id": id, "sheet_name": "名单A"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 5, body["max_rows"])
	assert.NotEmpty(t, body["data"])

	w = e.do(t, http.MethodPost, "/api/columns", gin.H{"file_id": id, "sheet_name": "名单A", "header_row": 1})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, []any{"姓名", "联系电话", "残疾证号", "备注"}, body["columns"])
	assert.Equal(t, "联系电话", body["suggested"].(map[string]any)[model.FieldPhone])

	w = e.do(t, http.MethodPost, "/api/columns", gin.H{"file_id": "missing", "sheet_name": "名单A"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/columns", gin.H{"sheet_name": "名单A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeValidation, decode(t, w)["code"])
}

func TestAnalyzeAndCompare(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	id := uploadFixture(t, e)

	w := e.do(t, http.MethodPost, "/api/analyze", gin.H{"file_id": id, "mappings": personMappings()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 2)

	w = e.do(t, http.MethodPost, "/api/compare", gin.H{"file_id": id, "mappings": personMappings(), "filter": "diff"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success bool           `json:"success"`
		Result  compare.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Result.Stats.Total)
	require.Len(t, resp.Result.Groups, 2)
	for _, g := range resp.Result.Groups {
		assert.False(t, g.IsSame)
	}

	m := personMappings()
	delete(m, "名单B")
	w = e.do(t, http.MethodPost, "/api/compare", gin.H{"file_id": id, "mappings": m})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeInsufficientSheets, decode(t, w)["code"])

	w = e.do(t, http.MethodPost, "/api/compare", gin.H{"file_id": id, "mappings": m, "filter": "odd"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 每次抽取都记录一次，包括对比失败的那次
	runs, err := e.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestExportAndDownload(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	id := uploadFixture(t, e)

	w := e.do(t, http.MethodPost, "/api/export", gin.H{"file_id": id, "mappings": personMappings(), "mode": "detailed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, export.ModeDetailed.ContentType(), w.Header().Get("Content-Type"))
	cd := w.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(cd, `attachment; filename="export.csv"; filename*=UTF-8''`), cd)
	assert.Contains(t, w.Body.String(), "人员标识")

	w = e.do(t, http.MethodPost, "/api/export", gin.H{"file_id": id, "mappings": personMappings(), "mode": "pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/export/prepare", gin.H{"file_id": id, "mappings": personMappings(), "mode": "xlsx"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	url := body["url"].(string)
	assert.True(t, strings.HasSuffix(body["filename"].(string), ".xlsx"))
	assert.True(t, strings.HasPrefix(body["filename"].(string), "名单整理_"))

	w = e.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.Bytes())

	// 一次性链接
	w = e.do(t, http.MethodGet, url, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMappingCacheRoutes(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	path := "/api/mapping-cache/roster.xlsx_100_2"

	w := e.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperr.CodeNotFound, decode(t, w)["code"])

	w = e.do(t, http.MethodPut, path, gin.H{"mappings": personMappings()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Mappings model.MappingConfig `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, personMappings(), resp.Mappings)

	w = e.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/api/mapping-cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	uploadFixture(t, e)

	w := e.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["uploads"])
}

func TestDiscardUpload(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	id := uploadFixture(t, e)

	w := e.do(t, http.MethodGet, "/api/upload/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["file_id"])

	w = e.do(t, http.MethodDelete, "/api/upload/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodDelete, "/api/upload/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/api/upload/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// 通过 HTTP 客户端走完整流程，确认两端的字段约定一致
func TestClientRoundTrip(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c := client.New(srv.URL, client.WithTimeout(10*time.Second))

	info, err := c.Upload(ctx, "名单.xlsx", bytes.NewReader(testutil.XLSX(t, testutil.PersonSheets()...)))
	require.NoError(t, err)
	assert.Equal(t, []string{"名单A", "名单B"}, info.SheetNames())

	rows, err := c.Preview(ctx, info.FileID, "名单B", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	cols, err := c.Columns(ctx, info.FileID, "名单B", 0)
	require.NoError(t, err)
	assert.Equal(t, "电话", cols.Suggested[model.FieldPhone])

	results, err := c.Analyze(ctx, info.FileID, personMappings())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].RecordCount)

	result, err := c.Compare(ctx, info.FileID, personMappings())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Total)

	f, err := c.Export(ctx, info.FileID, personMappings(), export.ModeSimple, compare.FilterAll, "名单")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.Name, "名单_"), f.Name)
	assert.True(t, strings.HasSuffix(f.Name, ".csv"), f.Name)

	require.NoError(t, c.SaveMapping(ctx, info.Fingerprint, personMappings()))
	cached, ok, err := c.LoadMapping(ctx, info.Fingerprint)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, personMappings(), cached)

	_, err = c.Preview(ctx, "missing", "名单A", 5)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.True(t, client.IsStatus(err, http.StatusNotFound))
}

func TestClientCompareInsufficientSheets(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c := client.New(srv.URL, client.WithTimeout(10*time.Second))
	info, err := c.Upload(ctx, "名单.xlsx", bytes.NewReader(testutil.XLSX(t, testutil.PersonSheets()...)))
	require.NoError(t, err)

	onlyA := model.MappingConfig{"名单A": personMappings()["名单A"]}
	result, err := c.Compare(ctx, info.FileID, onlyA)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperr.HasCode(err, apperr.CodeInsufficientSheets), "%v", err)
	assert.True(t, client.IsStatus(err, http.StatusBadRequest))
}
