package middlewares

import (
	"net/http"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ZapLogger 用 zap 记录每个请求
func ZapLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if subjectID, ok := c.Get(utils.ContextSubjectKey); ok {
			fields = append(fields, zap.Any("subjectID", subjectID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// ZapRecovery 捕获 panic，记录后返回统一的 500 响应
func ZapRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))
				xerr.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, xerr.ErrInternalServer.Error())
			}
		}()
		c.Next()
	}
}
