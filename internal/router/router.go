package router

import (
	"net/http"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/handlers"
	"github.com/3Eeeecho/go-docspace/internal/middlewares"
	"github.com/3Eeeecho/go-docspace/internal/pkg/metrics"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// Handlers 包含初始化路由所需的所有处理器
type Handlers struct {
	Space  *handlers.SpaceHandler
	Folder *handlers.FolderHandler
	File   *handlers.FileHandler
	Grant  *handlers.GrantHandler
	Export *handlers.ExportHandler
}

func InitRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(middlewares.ZapRecovery(), middlewares.ZapLogger(), metrics.GinMiddleware())

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	v1.Use(middlewares.AuthMiddleware(&cfg.JWT))
	{
		spaceGroup := v1.Group("/spaces")
		{
			spaceGroup.POST("", h.Space.CreateSpace)
			spaceGroup.GET("", h.Space.ListSpaces)
			spaceGroup.GET("/:space_id", h.Space.GetSpace)
			spaceGroup.PUT("/:space_id/quota", h.Space.UpdateQuota)
			spaceGroup.GET("/:space_id/usage", h.Space.GetUsage)
		}

		folderGroup := v1.Group("/folders")
		{
			folderGroup.POST("", h.Folder.CreateFolder)
			folderGroup.GET("", h.Folder.ListRoots)
			folderGroup.GET("/:folder_id", h.Folder.GetFolder)
			folderGroup.GET("/:folder_id/children", h.Folder.ListChildren)
			folderGroup.PUT("/:folder_id/name", h.Folder.RenameFolder)
			folderGroup.PUT("/:folder_id/attributes", h.Folder.UpdateAttributes)
			folderGroup.DELETE("/:folder_id", h.Folder.DeleteFolder)
		}

		fileGroup := v1.Group("/files")
		{
			fileGroup.POST("", h.File.UploadFile)
			fileGroup.GET("", h.File.ListFiles)
			fileGroup.GET("/:file_id", h.File.GetFile)
			fileGroup.PUT("/:file_id", h.File.UpdateFile)
			fileGroup.DELETE("/:file_id", h.File.DeleteFile)
			fileGroup.GET("/:file_id/download", h.File.DownloadFile)
			fileGroup.GET("/:file_id/url", h.File.PresignedURL)
			fileGroup.PUT("/:file_id/view-status", h.File.UpdateViewStatus)
			fileGroup.GET("/:file_id/history", h.File.GetHistory)
			fileGroup.POST("/:file_id/versions", h.File.UploadNewVersion)
			fileGroup.GET("/:file_id/versions", h.File.ListVersions)
			fileGroup.GET("/:file_id/versions/:version/download", h.File.DownloadVersion)
		}

		grantGroup := v1.Group("/grants")
		{
			grantGroup.POST("", h.Grant.AssignGrant)
			grantGroup.GET("", h.Grant.ListGrants)
			grantGroup.GET("/mine", h.Grant.ListMyGrants)
			grantGroup.PUT("/:grant_id", h.Grant.UpdateGrant)
			grantGroup.DELETE("/:grant_id", h.Grant.RevokeGrant)
		}
		v1.GET("/permissions", h.Grant.CheckPermissions)

		exportGroup := v1.Group("/exports")
		{
			exportGroup.POST("", h.Export.StartExport)
			exportGroup.GET("", h.Export.ListExports)
			exportGroup.GET("/:job_id", h.Export.GetExport)
			exportGroup.POST("/:job_id/cancel", h.Export.CancelExport)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}
