package utils

import (
	"net/http"

	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// 认证中间件写入上下文使用的 key
const (
	ContextSubjectKey = "subjectID"
	ContextTenantKey  = "tenantID"
)

// GetSubjectIDFromContext 从 Gin 上下文中获取并验证主体ID
// 如果获取失败或类型不正确，会中止请求并返回错误
func GetSubjectIDFromContext(c *gin.Context) (uint64, bool) {
	value, exists := c.Get(ContextSubjectKey)
	if !exists {
		xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Subject ID not found in context")
		return 0, false
	}
	subjectID, ok := value.(uint64)
	if !ok {
		xerr.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "Invalid subject ID type in context")
		return 0, false
	}
	return subjectID, true
}

// GetTenantIDFromContext 令牌中没有租户时返回 0
func GetTenantIDFromContext(c *gin.Context) uint64 {
	tenantID, _ := c.Get(ContextTenantKey)
	id, _ := tenantID.(uint64)
	return id
}
