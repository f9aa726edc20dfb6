package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"github.com/gin-gonic/gin"
)

type FileHandler struct {
	fileService explorer.FileService
}

func NewFileHandler(fileService explorer.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

type UpdateFileRequest struct {
	Name     *string           `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

type ViewStatusRequest struct {
	Status models.ViewStatus `json:"status" binding:"required"`
}

// uploadPart 读取 multipart 中的 file 字段
type uploadPart struct {
	name        string
	contentType string
	size        int64
	reader      io.ReadCloser
}

func readUploadPart(c *gin.Context) (*uploadPart, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, fmt.Sprintf("Failed to get file from form: %v", err))
		return nil, false
	}
	contentType := fileHeader.Header.Get("Content-Type")
	//如果客户端未设置Content-Type，则回退
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	stream, err := fileHeader.Open()
	if err != nil {
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "Failed to open uploaded file stream")
		return nil, false
	}
	return &uploadPart{
		name:        fileHeader.Filename,
		contentType: contentType,
		size:        fileHeader.Size,
		reader:      stream,
	}, true
}

// UploadFile multipart 字段：file、folder_id、metadata（JSON 对象，可选）
func (h *FileHandler) UploadFile(c *gin.Context) {
	folderID, err := strconv.ParseUint(c.PostForm("folder_id"), 10, 64)
	if err != nil || folderID == 0 {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid folder_id")
		return
	}
	var metadata map[string]string
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "metadata must be a JSON object of strings")
			return
		}
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	part, ok := readUploadPart(c)
	if !ok {
		return
	}
	defer part.reader.Close()

	file, err := h.fileService.Upload(c.Request.Context(), actor, explorer.UploadInput{
		FolderID:    folderID,
		Name:        part.name,
		ContentType: part.contentType,
		Size:        part.size,
		Reader:      part.reader,
		Metadata:    metadata,
		Client:      clientInfo(c),
	})
	if err != nil {
		respondError(c, "UploadFile", err)
		return
	}
	xerr.Success(c, http.StatusCreated, "文件上传成功", file)
}

func (h *FileHandler) UploadNewVersion(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	part, ok := readUploadPart(c)
	if !ok {
		return
	}
	defer part.reader.Close()

	file, err := h.fileService.UploadNewVersion(c.Request.Context(), actor, fileID, explorer.VersionInput{
		ContentType: part.contentType,
		Size:        part.size,
		Reader:      part.reader,
		Comment:     c.PostForm("comment"),
		Client:      clientInfo(c),
	})
	if err != nil {
		respondError(c, "UploadNewVersion", err)
		return
	}
	xerr.Success(c, http.StatusCreated, "新版本上传成功", file)
}

func (h *FileHandler) GetFile(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	file, err := h.fileService.Get(c.Request.Context(), actor, fileID)
	if err != nil {
		respondError(c, "GetFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取文件成功", file)
}

// ListFiles GET /files?folder_id=&status=
func (h *FileHandler) ListFiles(c *gin.Context) {
	folderID, ok := queryID(c, "folder_id")
	if !ok {
		return
	}
	status := models.FileStatus(c.DefaultQuery("status", string(models.FileStatusActive)))
	if status != models.FileStatusActive && status != models.FileStatusDeleted {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid status")
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	files, err := h.fileService.ListByFolder(c.Request.Context(), actor, folderID, status)
	if err != nil {
		respondError(c, "ListFiles", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取文件列表成功", files)
}

func (h *FileHandler) ListVersions(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	versions, err := h.fileService.ListVersions(c.Request.Context(), actor, fileID)
	if err != nil {
		respondError(c, "ListVersions", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取版本列表成功", versions)
}

func (h *FileHandler) GetHistory(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	history, err := h.fileService.History(c.Request.Context(), actor, fileID, limit)
	if err != nil {
		respondError(c, "GetHistory", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取访问记录成功", history)
}

func (h *FileHandler) DownloadFile(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	file, reader, err := h.fileService.Download(c.Request.Context(), actor, fileID, clientInfo(c))
	if err != nil {
		respondError(c, "DownloadFile", err)
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, file.Size, file.ContentType, reader, attachment(file.Name))
}

func (h *FileHandler) DownloadVersion(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	versionNumber, err := strconv.Atoi(c.Param("version"))
	if err != nil || versionNumber <= 0 {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid version")
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	version, reader, err := h.fileService.DownloadVersion(c.Request.Context(), actor, fileID, versionNumber)
	if err != nil {
		respondError(c, "DownloadVersion", err)
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, version.Size, version.ContentType, reader, attachment(fmt.Sprintf("file_%d_v%d", fileID, version.VersionNumber)))
}

func (h *FileHandler) PresignedURL(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	downloadURL, err := h.fileService.PresignedURL(c.Request.Context(), actor, fileID, clientInfo(c))
	if err != nil {
		respondError(c, "PresignedURL", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取下载链接成功", gin.H{"url": downloadURL})
}

func (h *FileHandler) UpdateFile(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	var req UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	file, err := h.fileService.Update(c.Request.Context(), actor, fileID, explorer.UpdateInput{Name: req.Name, Metadata: req.Metadata})
	if err != nil {
		respondError(c, "UpdateFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件更新成功", file)
}

func (h *FileHandler) UpdateViewStatus(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	var req ViewStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	file, err := h.fileService.UpdateViewStatus(c.Request.Context(), actor, fileID, req.Status, clientInfo(c))
	if err != nil {
		respondError(c, "UpdateViewStatus", err)
		return
	}
	xerr.Success(c, http.StatusOK, "查看状态更新成功", file)
}

func (h *FileHandler) DeleteFile(c *gin.Context) {
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	if err := h.fileService.Delete(c.Request.Context(), actor, fileID, clientInfo(c)); err != nil {
		respondError(c, "DeleteFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件删除成功", nil)
}

func attachment(name string) map[string]string {
	return map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)),
	}
}
