package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/export"
	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	exportService export.Service
}

func NewExportHandler(exportService export.Service) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

type StartExportRequest struct {
	FolderID          uint64 `json:"folder_id" binding:"required"`
	IncludeSubfolders *bool  `json:"include_subfolders"` // 默认 true
}

// StartExport 受理后立即返回 202 和任务信息，打包在后台进行
func (h *ExportHandler) StartExport(c *gin.Context) {
	var req StartExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	recursive := true
	if req.IncludeSubfolders != nil {
		recursive = *req.IncludeSubfolders
	}

	job, err := h.exportService.Start(c.Request.Context(), actor, req.FolderID, recursive)
	if err != nil {
		respondError(c, "StartExport", err)
		return
	}
	xerr.Success(c, http.StatusAccepted, "导出任务已受理", job)
}

func (h *ExportHandler) GetExport(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	job, err := h.exportService.Get(c.Request.Context(), actor, jobID)
	if err != nil {
		respondError(c, "GetExport", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取导出任务成功", job)
}

func (h *ExportHandler) ListExports(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	jobs, err := h.exportService.ListByRequester(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "ListExports", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取导出任务列表成功", jobs)
}

func (h *ExportHandler) CancelExport(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	job, err := h.exportService.Cancel(c.Request.Context(), actor, jobID)
	if err != nil {
		respondError(c, "CancelExport", err)
		return
	}
	xerr.Success(c, http.StatusOK, "已请求取消导出任务", job)
}
