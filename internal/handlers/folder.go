package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"github.com/gin-gonic/gin"
)

type FolderHandler struct {
	folderService explorer.FolderService
}

func NewFolderHandler(folderService explorer.FolderService) *FolderHandler {
	return &FolderHandler{folderService: folderService}
}

type CreateFolderRequest struct {
	SpaceID    uint64            `json:"space_id" binding:"required"`
	ParentID   *uint64           `json:"parent_id"` // 为空时创建根目录
	Name       string            `json:"name" binding:"required"`
	Attributes map[string]string `json:"attributes"`
}

type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

type AttributesRequest struct {
	Attributes map[string]string `json:"attributes" binding:"required"`
}

func (h *FolderHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	folder, err := h.folderService.Create(c.Request.Context(), actor, req.SpaceID, req.ParentID, req.Name, req.Attributes)
	if err != nil {
		respondError(c, "CreateFolder", err)
		return
	}
	xerr.Success(c, http.StatusCreated, "目录创建成功", folder)
}

func (h *FolderHandler) GetFolder(c *gin.Context) {
	folderID, ok := pathID(c, "folder_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	folder, err := h.folderService.Get(c.Request.Context(), actor, folderID)
	if err != nil {
		respondError(c, "GetFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取目录成功", folder)
}

// ListRoots GET /folders?space_id=
func (h *FolderHandler) ListRoots(c *gin.Context) {
	spaceID, ok := queryID(c, "space_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	folders, err := h.folderService.ListRoots(c.Request.Context(), actor, spaceID)
	if err != nil {
		respondError(c, "ListRoots", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取根目录成功", folders)
}

func (h *FolderHandler) ListChildren(c *gin.Context) {
	folderID, ok := pathID(c, "folder_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	listing, err := h.folderService.ListChildren(c.Request.Context(), actor, folderID)
	if err != nil {
		respondError(c, "ListChildren", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取目录内容成功", listing)
}

func (h *FolderHandler) RenameFolder(c *gin.Context) {
	folderID, ok := pathID(c, "folder_id")
	if !ok {
		return
	}
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	folder, err := h.folderService.Rename(c.Request.Context(), actor, folderID, req.Name)
	if err != nil {
		respondError(c, "RenameFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录重命名成功", folder)
}

func (h *FolderHandler) UpdateAttributes(c *gin.Context) {
	folderID, ok := pathID(c, "folder_id")
	if !ok {
		return
	}
	var req AttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	folder, err := h.folderService.UpdateAttributes(c.Request.Context(), actor, folderID, req.Attributes)
	if err != nil {
		respondError(c, "UpdateAttributes", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录属性更新成功", folder)
}

func (h *FolderHandler) DeleteFolder(c *gin.Context) {
	folderID, ok := pathID(c, "folder_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	result, err := h.folderService.Delete(c.Request.Context(), actor, folderID)
	if err != nil {
		respondError(c, "DeleteFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录删除成功", result)
}
