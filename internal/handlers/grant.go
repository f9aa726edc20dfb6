package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/gin-gonic/gin"
)

// GrantHandler 管理授权，调用者需要对资源有写权限
type GrantHandler struct {
	grants   access.GrantManager
	resolver access.Resolver
}

func NewGrantHandler(grants access.GrantManager, resolver access.Resolver) *GrantHandler {
	return &GrantHandler{grants: grants, resolver: resolver}
}

type AssignGrantRequest struct {
	ResourceKind models.ResourceKind `json:"resource_kind" binding:"required,oneof=FOLDER FILE"`
	ResourceID   uint64              `json:"resource_id" binding:"required"`
	SubjectID    uint64              `json:"subject_id" binding:"required"`
	Capabilities models.Capabilities `json:"capabilities"`
	ValidUntil   *time.Time          `json:"valid_until"`
}

type UpdateGrantRequest struct {
	Capabilities models.Capabilities `json:"capabilities"`
	ValidUntil   *time.Time          `json:"valid_until"`
}

// requireManage 校验调用者对授权所属资源有写权限
func (h *GrantHandler) requireManage(ctx context.Context, ref models.ResourceRef, subjectID uint64) error {
	return h.resolver.Require(ctx, models.CapWrite, ref, subjectID)
}

func (h *GrantHandler) AssignGrant(c *gin.Context) {
	var req AssignGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	ref := models.ResourceRef{Kind: req.ResourceKind, ID: req.ResourceID}
	ctx := c.Request.Context()

	if err := h.requireManage(ctx, ref, actor.SubjectID); err != nil {
		respondError(c, "AssignGrant", err)
		return
	}
	grant, err := h.grants.Assign(ctx, ref, req.SubjectID, req.Capabilities, actor.SubjectID, req.ValidUntil)
	if err != nil {
		respondError(c, "AssignGrant", err)
		return
	}
	xerr.Success(c, http.StatusOK, "授权成功", grant)
}

func (h *GrantHandler) UpdateGrant(c *gin.Context) {
	grantID, ok := pathID(c, "grant_id")
	if !ok {
		return
	}
	var req UpdateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := h.grants.Get(ctx, grantID)
	if err != nil {
		respondError(c, "UpdateGrant", err)
		return
	}
	if err := h.requireManage(ctx, existing.Resource(), actor.SubjectID); err != nil {
		respondError(c, "UpdateGrant", err)
		return
	}
	grant, err := h.grants.Update(ctx, grantID, req.Capabilities, req.ValidUntil, actor.SubjectID)
	if err != nil {
		respondError(c, "UpdateGrant", err)
		return
	}
	xerr.Success(c, http.StatusOK, "授权更新成功", grant)
}

func (h *GrantHandler) RevokeGrant(c *gin.Context) {
	grantID, ok := pathID(c, "grant_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := h.grants.Get(ctx, grantID)
	if err != nil {
		respondError(c, "RevokeGrant", err)
		return
	}
	if err := h.requireManage(ctx, existing.Resource(), actor.SubjectID); err != nil {
		respondError(c, "RevokeGrant", err)
		return
	}
	grant, err := h.grants.Revoke(ctx, grantID)
	if err != nil {
		respondError(c, "RevokeGrant", err)
		return
	}
	xerr.Success(c, http.StatusOK, "授权已撤销", grant)
}

// ListGrants GET /grants?kind=FOLDER&id=1[&effective=true]
func (h *GrantHandler) ListGrants(c *gin.Context) {
	ref, ok := resourceFromQuery(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.requireManage(ctx, ref, actor.SubjectID); err != nil {
		respondError(c, "ListGrants", err)
		return
	}
	var grants []models.Grant
	var err error
	if effective, _ := strconv.ParseBool(c.Query("effective")); effective {
		grants, err = h.grants.EffectiveByResource(ctx, ref)
	} else {
		grants, err = h.grants.ListByResource(ctx, ref)
	}
	if err != nil {
		respondError(c, "ListGrants", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取授权列表成功", grants)
}

// ListMyGrants 返回授予调用者本人的授权
func (h *GrantHandler) ListMyGrants(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	grants, err := h.grants.ListBySubject(c.Request.Context(), actor.SubjectID)
	if err != nil {
		respondError(c, "ListMyGrants", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取授权列表成功", grants)
}

// CheckPermissions GET /permissions?kind=FILE&id=10
func (h *GrantHandler) CheckPermissions(c *gin.Context) {
	ref, ok := resourceFromQuery(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	caps, err := h.resolver.Capabilities(c.Request.Context(), ref, actor.SubjectID)
	if err != nil {
		respondError(c, "CheckPermissions", err)
		return
	}
	xerr.Success(c, http.StatusOK, "权限查询成功", gin.H{
		"resource":     ref,
		"subject_id":   actor.SubjectID,
		"capabilities": caps,
	})
}

func resourceFromQuery(c *gin.Context) (models.ResourceRef, bool) {
	kind := models.ResourceKind(c.Query("kind"))
	if kind != models.ResourceFolder && kind != models.ResourceFile {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "kind must be FOLDER or FILE")
		return models.ResourceRef{}, false
	}
	id, ok := queryID(c, "id")
	if !ok {
		return models.ResourceRef{}, false
	}
	return models.ResourceRef{Kind: kind, ID: id}, true
}
