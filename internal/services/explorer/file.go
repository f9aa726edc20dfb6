package explorer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/lock"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/storage"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/3Eeeecho/go-docspace/internal/services/quota"
	"go.uber.org/zap"
)

type FileService interface {
	// 上传
	Upload(ctx context.Context, actor Actor, in UploadInput) (*models.File, error)
	UploadNewVersion(ctx context.Context, actor Actor, fileID uint64, in VersionInput) (*models.File, error)

	// 查询
	Get(ctx context.Context, actor Actor, fileID uint64) (*models.File, error)
	ListByFolder(ctx context.Context, actor Actor, folderID uint64, status models.FileStatus) ([]models.File, error)
	ListVersions(ctx context.Context, actor Actor, fileID uint64) ([]models.FileVersion, error)
	History(ctx context.Context, actor Actor, fileID uint64, limit int) ([]models.FileAccessHistory, error)

	// 下载
	Download(ctx context.Context, actor Actor, fileID uint64, client ClientInfo) (*models.File, io.ReadCloser, error)
	DownloadVersion(ctx context.Context, actor Actor, fileID uint64, versionNumber int) (*models.FileVersion, io.ReadCloser, error)
	PresignedURL(ctx context.Context, actor Actor, fileID uint64, client ClientInfo) (string, error)

	// 修改
	Update(ctx context.Context, actor Actor, fileID uint64, in UpdateInput) (*models.File, error)
	UpdateViewStatus(ctx context.Context, actor Actor, fileID uint64, status models.ViewStatus, client ClientInfo) (*models.File, error)
	Delete(ctx context.Context, actor Actor, fileID uint64, client ClientInfo) error
}

type UpdateInput struct {
	Name     *string
	Metadata map[string]string
}

type fileService struct {
	fileRepo    repositories.FileRepository
	versionRepo repositories.FileVersionRepository
	folderRepo  repositories.FolderRepository
	spaceRepo   repositories.TenantSpaceRepository
	tm          repositories.TransactionManager
	store       storage.ObjectStore
	resolver    access.Resolver
	quota       quota.Manager
	locker      lock.Locker
	auditor     *Auditor
	urlTTL      time.Duration
	lockTTL     time.Duration
	now         func() time.Time
}

var _ FileService = (*fileService)(nil)

func NewFileService(
	fileRepo repositories.FileRepository,
	versionRepo repositories.FileVersionRepository,
	folderRepo repositories.FolderRepository,
	spaceRepo repositories.TenantSpaceRepository,
	tm repositories.TransactionManager,
	store storage.ObjectStore,
	resolver access.Resolver,
	quotaManager quota.Manager,
	locker lock.Locker,
	auditor *Auditor,
	urlTTL time.Duration,
	lockTTL time.Duration,
) FileService {
	return &fileService{
		fileRepo:    fileRepo,
		versionRepo: versionRepo,
		folderRepo:  folderRepo,
		spaceRepo:   spaceRepo,
		tm:          tm,
		store:       store,
		resolver:    resolver,
		quota:       quotaManager,
		locker:      locker,
		auditor:     auditor,
		urlTTL:      urlTTL,
		lockTTL:     lockTTL,
		now:         time.Now,
	}
}

func (s *fileService) Get(ctx context.Context, actor Actor, fileID uint64) (*models.File, error) {
	file, err := s.fileRepo.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapRead, models.FileRef(fileID), actor.SubjectID); err != nil {
		return nil, err
	}
	return file, nil
}

func (s *fileService) ListByFolder(ctx context.Context, actor Actor, folderID uint64, status models.FileStatus) ([]models.File, error) {
	if status == "" {
		status = models.FileStatusActive
	}
	if _, err := activeFolder(ctx, s.folderRepo, folderID); err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapRead, models.FolderRef(folderID), actor.SubjectID); err != nil {
		return nil, err
	}
	return s.fileRepo.FindByFolder(ctx, folderID, status)
}

func (s *fileService) ListVersions(ctx context.Context, actor Actor, fileID uint64) ([]models.FileVersion, error) {
	if _, err := s.Get(ctx, actor, fileID); err != nil {
		return nil, err
	}
	return s.versionRepo.FindByFileID(ctx, fileID)
}

func (s *fileService) History(ctx context.Context, actor Actor, fileID uint64, limit int) ([]models.FileAccessHistory, error) {
	if _, err := s.Get(ctx, actor, fileID); err != nil {
		return nil, err
	}
	return s.auditor.History(ctx, fileID, limit)
}

func (s *fileService) Download(ctx context.Context, actor Actor, fileID uint64, client ClientInfo) (*models.File, io.ReadCloser, error) {
	file, err := s.downloadable(ctx, actor, fileID)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.store.Get(ctx, file.StorageKey)
	if err != nil {
		logger.Error("Download: failed to read object", zap.Uint64("fileID", fileID), zap.String("key", file.StorageKey), zap.Error(err))
		return nil, nil, err
	}

	s.markDownloaded(ctx, file)
	s.auditor.Record(ctx, file.ID, actor.SubjectID, models.ActionDownload, client, "")
	return file, obj.Reader, nil
}

func (s *fileService) DownloadVersion(ctx context.Context, actor Actor, fileID uint64, versionNumber int) (*models.FileVersion, io.ReadCloser, error) {
	file, err := s.downloadable(ctx, actor, fileID)
	if err != nil {
		return nil, nil, err
	}

	// 当前版本没有快照，直接读文件本身
	if versionNumber == file.Version {
		obj, err := s.store.Get(ctx, file.StorageKey)
		if err != nil {
			return nil, nil, err
		}
		current := &models.FileVersion{
			FileID:        file.ID,
			VersionNumber: file.Version,
			Size:          file.Size,
			ContentType:   file.ContentType,
			CreatedBy:     file.UploadedBy,
			CreatedAt:     file.UpdatedAt,
		}
		return current, obj.Reader, nil
	}

	version, err := s.versionRepo.FindByNumber(ctx, fileID, versionNumber)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.store.Get(ctx, version.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return version, obj.Reader, nil
}

func (s *fileService) PresignedURL(ctx context.Context, actor Actor, fileID uint64, client ClientInfo) (string, error) {
	file, err := s.downloadable(ctx, actor, fileID)
	if err != nil {
		return "", err
	}

	url, err := s.store.PresignedGetURL(ctx, file.StorageKey, s.urlTTL)
	if err != nil {
		logger.Error("PresignedURL: failed to sign", zap.Uint64("fileID", fileID), zap.Error(err))
		return "", err
	}

	s.markDownloaded(ctx, file)
	s.auditor.Record(ctx, file.ID, actor.SubjectID, models.ActionDownload, client, "presigned")
	return url, nil
}

func (s *fileService) Update(ctx context.Context, actor Actor, fileID uint64, in UpdateInput) (*models.File, error) {
	file, err := activeFile(ctx, s.fileRepo, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapWrite, models.FileRef(fileID), actor.SubjectID); err != nil {
		return nil, err
	}

	if in.Name != nil && *in.Name != file.Name {
		if !utils.ValidateName(*in.Name) {
			return nil, fmt.Errorf("%w: invalid file name %q", xerr.ErrInvalidParams, *in.Name)
		}
		exists, err := s.fileRepo.ExistsByName(ctx, file.FolderID, *in.Name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: file %q", xerr.ErrDuplicateName, *in.Name)
		}
		file.Name = *in.Name
	}
	if in.Metadata != nil {
		file.Metadata = in.Metadata
	}

	if err := s.fileRepo.Update(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

func (s *fileService) UpdateViewStatus(ctx context.Context, actor Actor, fileID uint64, status models.ViewStatus, client ClientInfo) (*models.File, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown view status %q", xerr.ErrInvalidParams, status)
	}
	file, err := activeFile(ctx, s.fileRepo, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapRead, models.FileRef(fileID), actor.SubjectID); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.fileRepo.UpdateViewStatus(ctx, fileID, status, now); err != nil {
		return nil, err
	}
	file.SetViewStatus(status, now)
	if status == models.ViewStatusViewed {
		s.auditor.Record(ctx, fileID, actor.SubjectID, models.ActionView, client, "")
	}
	return file, nil
}

func (s *fileService) Delete(ctx context.Context, actor Actor, fileID uint64, client ClientInfo) error {
	file, err := activeFile(ctx, s.fileRepo, fileID)
	if err != nil {
		return err
	}
	if err := s.resolver.Require(ctx, models.CapDelete, models.FileRef(fileID), actor.SubjectID); err != nil {
		return err
	}
	folder, err := s.folderRepo.FindByID(ctx, file.FolderID)
	if err != nil {
		return err
	}

	// 只做软删除，对象和历史版本保留
	err = s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		file.Status = models.FileStatusDeleted
		if err := s.fileRepo.Update(ctx, file); err != nil {
			return err
		}
		return s.quota.ApplyDelta(ctx, folder.SpaceID, -file.Size)
	})
	if err != nil {
		logger.Error("DeleteFile: failed", zap.Uint64("fileID", fileID), zap.Error(err))
		return err
	}

	s.auditor.Record(ctx, fileID, actor.SubjectID, models.ActionDelete, client, "")
	logger.Info("File deleted", zap.Uint64("fileID", fileID), zap.Int64("size", file.Size), zap.Uint64("subjectID", actor.SubjectID))
	return nil
}

// downloadable 返回有效文件，并要求 download 权限
func (s *fileService) downloadable(ctx context.Context, actor Actor, fileID uint64) (*models.File, error) {
	file, err := activeFile(ctx, s.fileRepo, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapDownload, models.FileRef(fileID), actor.SubjectID); err != nil {
		return nil, err
	}
	return file, nil
}

func (s *fileService) markDownloaded(ctx context.Context, file *models.File) {
	now := s.now()
	if err := s.fileRepo.UpdateViewStatus(ctx, file.ID, models.ViewStatusDownloaded, now); err != nil {
		logger.Warn("Failed to update view status after download", zap.Uint64("fileID", file.ID), zap.Error(err))
		return
	}
	file.SetViewStatus(models.ViewStatusDownloaded, now)
}
