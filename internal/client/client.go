// Package client 通过 HTTP 调用 xuwei 服务端接口。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/model"
)

// Client HTTP 后端
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout 请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New 创建客户端，baseURL 形如 http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// StatusError 服务端返回非 2xx 状态
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// IsStatus 判断错误是否为指定的 HTTP 状态
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// envelope 所有 JSON 接口共用的外层字段
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperr.WithCode(apperr.CodeNetwork, err, "创建请求失败")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "request failed", "method", method, "path", path, "error", err)
		return nil, apperr.WithCode(apperr.CodeNetwork, err, "网络请求失败")
	}
	c.logger.DebugContext(ctx, "request done", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		se := &StatusError{Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			se.Code, se.Message = env.Code, env.Error
		}
		// 带错误码的响应体保留服务端的错误码，其余视为网络错误
		if se.Code != "" {
			return nil, &apperr.AppError{Code: se.Code, Message: "服务器返回错误", Cause: se}
		}
		return nil, apperr.WithCode(apperr.CodeNetwork, se, "服务器返回错误")
	}
	return resp, nil
}

// call 发送 JSON 请求并解析 JSON 响应；success=false 视为服务端报告的错误
func (c *Client) call(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(err, "编码请求失败")
		}
		body = bytes.NewReader(data)
	}
	resp, err := c.do(ctx, http.MethodPost, path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp.Body, out)
}

func decode(r io.Reader, out any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return apperr.WithCode(apperr.CodeNetwork, err, "读取响应失败")
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return apperr.WithCode(apperr.CodeNetwork, err, "响应不是有效的 JSON")
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "服务器处理失败"
		}
		return apperr.New(apperr.CodeServerReported, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.WithCode(apperr.CodeNetwork, err, "解析响应失败")
	}
	return nil
}

// Upload 上传工作簿
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (model.UploadInfo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.UploadInfo{}, apperr.Wrap(err, "创建上传表单失败")
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.UploadInfo{}, apperr.Wrap(err, "读取文件失败")
	}
	if err := mw.Close(); err != nil {
		return model.UploadInfo{}, apperr.Wrap(err, "创建上传表单失败")
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return model.UploadInfo{}, err
	}
	defer resp.Body.Close()

	var info model.UploadInfo
	if err := decode(resp.Body, &info); err != nil {
		return model.UploadInfo{}, err
	}
	return info, nil
}

// Preview 预览 sheet 前 maxRows 行
func (c *Client) Preview(ctx context.Context, fileID, sheet string, maxRows int) ([][]string, error) {
	var out struct {
		Data [][]string `json:"data"`
	}
	err := c.call(ctx, "/api/sheet-preview", map[string]any{
		"file_id": fileID, "sheet_name": sheet, "max_rows": maxRows,
	}, &out)
	return out.Data, err
}

// Columns 获取列名与推荐映射
func (c *Client) Columns(ctx context.Context, fileID, sheet string, headerRow int) (model.ColumnsInfo, error) {
	var out model.ColumnsInfo
	err := c.call(ctx, "/api/columns", map[string]any{
		"file_id": fileID, "sheet_name": sheet, "header_row": headerRow,
	}, &out)
	return out, err
}

// Analyze 按映射抽取全部 sheet
func (c *Client) Analyze(ctx context.Context, fileID string, mappings model.MappingConfig) ([]model.SheetResult, error) {
	var out struct {
		Results []model.SheetResult `json:"results"`
	}
	err := c.call(ctx, "/api/analyze", map[string]any{"file_id": fileID, "mappings": mappings}, &out)
	return out.Results, err
}

// Compare 由服务端完成对比
func (c *Client) Compare(ctx context.Context, fileID string, mappings model.MappingConfig) (*compare.Result, error) {
	var out struct {
		Result *compare.Result `json:"result"`
	}
	if err := c.call(ctx, "/api/compare", map[string]any{"file_id": fileID, "mappings": mappings}, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, apperr.New(apperr.CodeServerReported, "响应中缺少对比结果")
	}
	return out.Result, nil
}

// Export 由服务端生成导出文件，文件名取自 Content-Disposition
func (c *Client) Export(ctx context.Context, fileID string, mappings model.MappingConfig, mode export.Mode, filter compare.Filter, label string) (export.File, error) {
	data, err := json.Marshal(map[string]any{
		"file_id": fileID, "mappings": mappings, "mode": mode, "filter": filter, "label": label,
	})
	if err != nil {
		return export.File{}, apperr.Wrap(err, "编码请求失败")
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/export", "application/json", bytes.NewReader(data))
	if err != nil {
		return export.File{}, err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		return export.File{}, decode(resp.Body, nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return export.File{}, apperr.WithCode(apperr.CodeNetwork, err, "读取导出文件失败")
	}

	name := export.Filename(label, mode.Ext(), time.Now())
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return export.File{Name: name, ContentType: ct, Data: body}, nil
}

func cachePath(fingerprint string) string {
	return "/api/mapping-cache/" + url.PathEscape(fingerprint)
}

// LoadMapping 读取服务端保存的映射，不存在时返回 false
func (c *Client) LoadMapping(ctx context.Context, fingerprint string) (model.MappingConfig, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, cachePath(fingerprint), "", nil)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	var out struct {
		Mappings model.MappingConfig `json:"mappings"`
	}
	if err := decode(resp.Body, &out); err != nil {
		return nil, false, err
	}
	return out.Mappings, true, nil
}

// SaveMapping 保存映射到服务端
func (c *Client) SaveMapping(ctx context.Context, fingerprint string, mappings model.MappingConfig) error {
	data, err := json.Marshal(map[string]any{"mappings": mappings})
	if err != nil {
		return apperr.Wrap(err, "编码请求失败")
	}
	resp, err := c.do(ctx, http.MethodPut, cachePath(fingerprint), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp.Body, nil)
}

// DeleteMapping 删除服务端保存的映射
func (c *Client) DeleteMapping(ctx context.Context, fingerprint string) error {
	resp, err := c.do(ctx, http.MethodDelete, cachePath(fingerprint), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp.Body, nil)
}

// ClearMappings 清空服务端映射缓存
func (c *Client) ClearMappings(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/mapping-cache", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp.Body, nil)
}
