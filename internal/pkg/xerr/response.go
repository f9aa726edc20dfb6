package xerr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CodeError 结构体用于在服务层传递带有业务码的错误
type CodeError struct {
	Code int   // 业务错误码
	Err  error // 被包裹的底层错误
}

func (e *CodeError) Error() string {
	return e.Err.Error()
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// NewCodeError 创建一个 CodeError 实例
func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// 按顺序匹配，越具体的错误越靠前
var errorTable = []struct {
	target     error
	code       int
	httpStatus int
}{
	{ErrFileNotFound, FileNotFoundCode, http.StatusNotFound},
	{ErrDirectoryNotFound, DirectoryNotFoundCode, http.StatusNotFound},
	{ErrSpaceNotFound, SpaceNotFoundCode, http.StatusNotFound},
	{ErrGrantNotFound, GrantNotFoundCode, http.StatusNotFound},
	{ErrExportNotFound, ExportNotFoundCode, http.StatusNotFound},
	{ErrVersionNotFound, VersionNotFoundCode, http.StatusNotFound},
	{ErrNotFound, NotFoundCode, http.StatusNotFound},
	{ErrPermissionDenied, PermissionDeniedCode, http.StatusForbidden},
	{ErrUnauthorized, UnauthorizedCode, http.StatusUnauthorized},
	{ErrTokenInvalid, TokenInvalidCode, http.StatusUnauthorized},
	{ErrQuotaExceeded, QuotaExceededCode, http.StatusRequestEntityTooLarge},
	{ErrDuplicateName, FileAlreadyExistsCode, http.StatusConflict},
	{ErrSpaceAlreadyExists, SpaceAlreadyExistsCode, http.StatusConflict},
	{ErrJobStateConflict, JobStateConflictCode, http.StatusConflict},
	{ErrInvalidHierarchy, InvalidHierarchyCode, http.StatusUnprocessableEntity},
	{ErrInvalidParams, InvalidParamsCode, http.StatusBadRequest},
	{ErrValidationFailed, ValidationFailedCode, http.StatusBadRequest},
	{ErrStorageError, StorageErrorCode, http.StatusBadGateway},
	{ErrDatabaseError, DatabaseErrorCode, http.StatusInternalServerError},
	{ErrMQError, MQErrorCode, http.StatusInternalServerError},
}

// Classify 返回错误对应的业务码与 HTTP 状态码
// 显式的 CodeError 优先，其次按哨兵错误匹配，都不匹配时视为内部错误
func Classify(err error) (code int, httpStatus int) {
	if err == nil {
		return SuccessCode, http.StatusOK
	}

	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		for _, entry := range errorTable {
			if entry.code == codeErr.Code {
				return codeErr.Code, entry.httpStatus
			}
		}
		return codeErr.Code, http.StatusInternalServerError
	}

	for _, entry := range errorTable {
		if errors.Is(err, entry.target) {
			return entry.code, entry.httpStatus
		}
	}
	return InternalServerErrorCode, http.StatusInternalServerError
}

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 消息
	Data    any    `json:"data"`    // 响应数据
}

// JSONResponse 发送标准 JSON 响应
func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, SuccessCode, message, data)
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// Respond 根据服务层返回的错误写出对应的响应
// 内部错误不把底层细节暴露给调用方
func Respond(c *gin.Context, err error) {
	code, status := Classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = ErrInternalServer.Error()
	}
	Error(c, status, code, msg)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort()
}
