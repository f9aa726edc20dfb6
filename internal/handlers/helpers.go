package handlers

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// currentActor 读取认证中间件写入的调用者身份
func currentActor(c *gin.Context) (explorer.Actor, bool) {
	subjectID, ok := utils.GetSubjectIDFromContext(c)
	if !ok {
		return explorer.Actor{}, false
	}
	return explorer.Actor{SubjectID: subjectID, TenantID: utils.GetTenantIDFromContext(c)}, true
}

func clientInfo(c *gin.Context) explorer.ClientInfo {
	return explorer.ClientInfo{IPAddress: c.ClientIP(), DeviceInfo: c.Request.UserAgent()}
}

// pathID 解析路径参数中的ID，失败时写出 400
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的 "+name)
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil || id == 0 {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的 "+name)
		return 0, false
	}
	return id, true
}

func bindError(c *gin.Context, err error) {
	xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
}

// respondError 写出错误响应，内部错误额外记录日志
func respondError(c *gin.Context, op string, err error) {
	if _, status := xerr.Classify(err); status >= http.StatusInternalServerError {
		logger.Error(op+" failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	xerr.Respond(c, err)
}
