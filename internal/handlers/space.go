package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"github.com/gin-gonic/gin"
)

type SpaceHandler struct {
	spaceService explorer.SpaceService
}

func NewSpaceHandler(spaceService explorer.SpaceService) *SpaceHandler {
	return &SpaceHandler{spaceService: spaceService}
}

type CreateSpaceRequest struct {
	ModuleID        uint64 `json:"module_id" binding:"required"`
	TotalQuotaBytes int64  `json:"total_quota_bytes" binding:"required,gt=0"`
}

type UpdateQuotaRequest struct {
	TotalQuotaBytes int64 `json:"total_quota_bytes" binding:"required,gt=0"`
}

// CreateSpace 为调用者所在租户创建存储空间
func (h *SpaceHandler) CreateSpace(c *gin.Context) {
	var req CreateSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	space, err := h.spaceService.Create(c.Request.Context(), actor, req.ModuleID, req.TotalQuotaBytes)
	if err != nil {
		respondError(c, "CreateSpace", err)
		return
	}
	xerr.Success(c, http.StatusCreated, "存储空间创建成功", space)
}

func (h *SpaceHandler) GetSpace(c *gin.Context) {
	spaceID, ok := pathID(c, "space_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	space, err := h.spaceService.Get(c.Request.Context(), actor, spaceID)
	if err != nil {
		respondError(c, "GetSpace", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取存储空间成功", space)
}

func (h *SpaceHandler) ListSpaces(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	spaces, err := h.spaceService.ListByTenant(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "ListSpaces", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取存储空间列表成功", spaces)
}

func (h *SpaceHandler) UpdateQuota(c *gin.Context) {
	spaceID, ok := pathID(c, "space_id")
	if !ok {
		return
	}
	var req UpdateQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	space, err := h.spaceService.UpdateQuota(c.Request.Context(), actor, spaceID, req.TotalQuotaBytes)
	if err != nil {
		respondError(c, "UpdateQuota", err)
		return
	}
	xerr.Success(c, http.StatusOK, "配额更新成功", space)
}

func (h *SpaceHandler) GetUsage(c *gin.Context) {
	spaceID, ok := pathID(c, "space_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	usage, err := h.spaceService.Usage(c.Request.Context(), actor, spaceID)
	if err != nil {
		respondError(c, "GetUsage", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取空间用量成功", usage)
}
