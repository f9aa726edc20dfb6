package middlewares

import (
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware 校验外部身份服务签发的 Bearer Token
func AuthMiddleware(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Authorization header is required")
			return
		}

		// Token 格式通常是 "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Invalid Authorization header format")
			return
		}

		// 2. 解析和验证 Token
		claims, err := utils.ParseToken(parts[1], cfg.SecretKey, cfg.Issuer)
		if err != nil {
			logger.Debug("Token rejected", zap.Error(err))
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.TokenInvalidCode, xerr.ErrTokenInvalid.Error())
			return
		}

		// 3. 将主体信息存储到 Gin Context 中
		c.Set(utils.ContextSubjectKey, claims.SubjectID)
		c.Set(utils.ContextTenantKey, claims.TenantID)

		c.Next()
	}
}
