package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode    = 40000 // 无效的请求参数
	ValidationFailedCode = 40001 // 参数验证失败
	InvalidHierarchyCode = 40013 // 目录层级损坏（环或跨空间父目录）

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode = 40100 // 通用未授权
	TokenInvalidCode = 40101 // Token 无效或过期

	// --- 权限错误系列 (403xx) ---
	ForbiddenCode        = 40300 // 通用无权限
	PermissionDeniedCode = 40301 // 权限不足 (细分)

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode          = 40400 // 通用资源未找到
	FileNotFoundCode      = 40402 // 文件不存在
	DirectoryNotFoundCode = 40403 // 目录不存在
	SpaceNotFoundCode     = 40407 // 租户空间不存在
	GrantNotFoundCode     = 40408 // 授权记录不存在
	ExportNotFoundCode    = 40409 // 导出任务不存在
	VersionNotFoundCode   = 40410 // 文件版本不存在

	// --- 业务逻辑冲突系列 (409xx) ---
	FileAlreadyExistsCode  = 40904 // 文件或目录已存在
	SpaceAlreadyExistsCode = 40905 // 租户空间已存在
	JobStateConflictCode   = 40906 // 导出任务状态不允许该操作

	// --- 配额错误系列 (413xx) ---
	QuotaExceededCode = 41300 // 超出空间配额

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 存储服务操作失败（如MinIO）
	MQErrorCode             = 50003 // 任务队列操作失败
)
