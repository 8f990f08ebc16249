package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误码
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNetwork            = "NETWORK_ERROR"
	CodeServerReported     = "SERVER_REPORTED_ERROR"
	CodeInsufficientSheets = "INSUFFICIENT_SHEETS"
	CodeGroupNotFound      = "GROUP_NOT_FOUND"
	CodeSheetNotFound      = "SHEET_NOT_FOUND"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError 带错误码的应用错误
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，便于 errors.Is(err, apperr.New(code, ""))
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New 创建错误
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf 创建带格式化消息的错误
func Newf(code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误；已是 AppError 时保留其错误码
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// WithCode 以指定错误码包装
func WithCode(code string, err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// CodeOf 返回错误码，非 AppError 返回 CodeInternal
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode 判断错误链中是否含有指定错误码
func HasCode(err error, code string) bool {
	return errors.Is(err, New(code, ""))
}

// HTTPStatus 错误码对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeInsufficientSheets:
		return http.StatusBadRequest
	case CodeNotFound, CodeGroupNotFound, CodeSheetNotFound:
		return http.StatusNotFound
	case CodeNetwork, CodeServerReported:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation 校验错误（文件类型/大小、参数等）
func Validation(format string, args ...any) *AppError {
	return Newf(CodeValidation, format, args...)
}

// NotFound 资源不存在
func NotFound(format string, args ...any) *AppError {
	return Newf(CodeNotFound, format, args...)
}

// InsufficientSheets 可参与对比的 Sheet 少于 2 个
func InsufficientSheets(got int) *AppError {
	return Newf(CodeInsufficientSheets, "至少需要 2 个有数据的 Sheet 才能对比，当前 %d 个", got)
}

// GroupNotFound 人员分组不存在
func GroupNotFound(key string) *AppError {
	return Newf(CodeGroupNotFound, "人员不存在: %s", key)
}

// SheetNotFound 分组中没有该 Sheet 的记录
func SheetNotFound(key, sheet string) *AppError {
	return Newf(CodeSheetNotFound, "人员 %s 在 Sheet %s 中没有记录", key, sheet)
}
