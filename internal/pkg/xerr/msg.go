package xerr

import (
	"errors"
	"fmt"
)

var (
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams    = errors.New("无效的请求参数")
	ErrValidationFailed = errors.New("参数验证失败")
	ErrInvalidHierarchy = errors.New("目录层级异常：存在环、层级过深或跨空间的父目录")

	// 认证与授权错误
	ErrUnauthorized = errors.New("用户未授权")
	ErrTokenInvalid = errors.New("认证 Token 无效或已过期")

	// 权限错误
	ErrPermissionDenied = errors.New("您没有操作此资源的权限")

	// 资源未找到错误，具体资源的错误都包裹 ErrNotFound
	ErrNotFound          = errors.New("资源不存在")
	ErrFileNotFound      = fmt.Errorf("文件不存在: %w", ErrNotFound)
	ErrDirectoryNotFound = fmt.Errorf("目录不存在: %w", ErrNotFound)
	ErrSpaceNotFound     = fmt.Errorf("租户空间不存在: %w", ErrNotFound)
	ErrGrantNotFound     = fmt.Errorf("授权记录不存在: %w", ErrNotFound)
	ErrExportNotFound    = fmt.Errorf("导出任务不存在: %w", ErrNotFound)
	ErrVersionNotFound   = fmt.Errorf("文件版本不存在: %w", ErrNotFound)

	// 业务逻辑冲突
	ErrDuplicateName      = errors.New("同一目录下已存在同名文件或目录")
	ErrSpaceAlreadyExists = errors.New("该租户在此模块下已存在存储空间")
	ErrJobStateConflict   = errors.New("导出任务当前状态不允许该操作")
	ErrExportCancelled    = errors.New("export cancelled")

	// 配额
	ErrQuotaExceeded = errors.New("超出存储空间配额")

	// 数据库与外部服务错误
	ErrDatabaseError = errors.New("数据库操作失败")
	ErrStorageError  = errors.New("存储服务操作失败")
	ErrMQError       = errors.New("任务队列操作失败")
)
