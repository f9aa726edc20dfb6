package explorer

import (
	"context"
	"fmt"
	"io"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/cache"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"go.uber.org/zap"
)

const defaultContentType = "application/octet-stream"

type UploadInput struct {
	FolderID    uint64
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
	Metadata    map[string]string
	Client      ClientInfo
}

type VersionInput struct {
	ContentType string
	Size        int64
	Reader      io.Reader
	Comment     string
	Client      ClientInfo
}

// Upload 流程：权限 -> 重名 -> 预留配额 -> 写对象存储 -> 写记录，失败时归还配额
func (s *fileService) Upload(ctx context.Context, actor Actor, in UploadInput) (*models.File, error) {
	if !utils.ValidateName(in.Name) {
		return nil, fmt.Errorf("%w: invalid file name %q", xerr.ErrInvalidParams, in.Name)
	}
	if in.Size < 0 || in.Reader == nil {
		return nil, fmt.Errorf("%w: file content is required", xerr.ErrInvalidParams)
	}
	if in.ContentType == "" {
		in.ContentType = defaultContentType
	}

	folder, err := activeFolder(ctx, s.folderRepo, in.FolderID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapWrite, models.FolderRef(folder.ID), actor.SubjectID); err != nil {
		return nil, err
	}
	exists, err := s.fileRepo.ExistsByName(ctx, folder.ID, in.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: file %q", xerr.ErrDuplicateName, in.Name)
	}
	space, err := s.spaceRepo.FindByID(ctx, folder.SpaceID)
	if err != nil {
		return nil, err
	}

	if err := s.quota.CheckAndReserve(ctx, space.ID, in.Size); err != nil {
		return nil, err
	}

	key := utils.BuildObjectKey(space.StoragePath, in.Name, s.now())
	if err := s.putObject(ctx, key, in.Reader, in.Size, in.ContentType); err != nil {
		s.releaseQuota(ctx, space.ID, in.Size)
		return nil, err
	}

	file := &models.File{
		FolderID:    folder.ID,
		Name:        in.Name,
		Size:        in.Size,
		ContentType: in.ContentType,
		StorageKey:  key,
		Status:      models.FileStatusActive,
		Version:     1,
		Metadata:    in.Metadata,
		UploadedBy:  actor.SubjectID,
	}
	file.SetViewStatus(models.ViewStatusNew, s.now())
	if err := s.fileRepo.Create(ctx, file); err != nil {
		s.discardObject(ctx, key)
		s.releaseQuota(ctx, space.ID, in.Size)
		return nil, err
	}

	s.auditor.Record(ctx, file.ID, actor.SubjectID, models.ActionUpload, in.Client, "")
	logger.Info("File uploaded",
		zap.Uint64("fileID", file.ID),
		zap.Uint64("folderID", folder.ID),
		zap.Int64("size", file.Size),
		zap.Uint64("subjectID", actor.SubjectID))
	return file, nil
}

// UploadNewVersion 旧内容保存为版本快照，文件指向新对象，配额按新旧大小差调整
func (s *fileService) UploadNewVersion(ctx context.Context, actor Actor, fileID uint64, in VersionInput) (*models.File, error) {
	if in.Size < 0 || in.Reader == nil {
		return nil, fmt.Errorf("%w: file content is required", xerr.ErrInvalidParams)
	}
	if _, err := activeFile(ctx, s.fileRepo, fileID); err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapWrite, models.FileRef(fileID), actor.SubjectID); err != nil {
		return nil, err
	}

	// 同一文件的新版本串行上传，避免两个快照争用同一版本号
	unlock, err := s.locker.Lock(ctx, cache.FileLockKey(fileID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	file, err := activeFile(ctx, s.fileRepo, fileID)
	if err != nil {
		return nil, err
	}
	if in.ContentType == "" {
		in.ContentType = file.ContentType
	}
	folder, err := s.folderRepo.FindByID(ctx, file.FolderID)
	if err != nil {
		return nil, err
	}
	space, err := s.spaceRepo.FindByID(ctx, folder.SpaceID)
	if err != nil {
		return nil, err
	}

	// 只为增长部分预留配额，缩小部分在成功后归还
	delta := in.Size - file.Size
	if delta > 0 {
		if err := s.quota.CheckAndReserve(ctx, space.ID, delta); err != nil {
			return nil, err
		}
	}

	key := utils.BuildObjectKey(space.StoragePath, file.Name, s.now())
	if err := s.putObject(ctx, key, in.Reader, in.Size, in.ContentType); err != nil {
		s.releaseQuota(ctx, space.ID, delta)
		return nil, err
	}

	snapshot := &models.FileVersion{
		FileID:        file.ID,
		VersionNumber: file.Version,
		Size:          file.Size,
		ContentType:   file.ContentType,
		StorageKey:    file.StorageKey,
		CreatedBy:     actor.SubjectID,
		ChangeComment: in.Comment,
	}
	file.Size = in.Size
	file.ContentType = in.ContentType
	file.StorageKey = key
	file.Version++

	err = s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.versionRepo.Create(ctx, snapshot); err != nil {
			return err
		}
		if err := s.fileRepo.Update(ctx, file); err != nil {
			return err
		}
		if delta < 0 {
			return s.quota.ApplyDelta(ctx, space.ID, delta)
		}
		return nil
	})
	if err != nil {
		logger.Error("UploadNewVersion: failed to persist version", zap.Uint64("fileID", fileID), zap.Error(err))
		s.discardObject(ctx, key)
		s.releaseQuota(ctx, space.ID, delta)
		return nil, err
	}

	s.auditor.Record(ctx, file.ID, actor.SubjectID, models.ActionNewVersion, in.Client, in.Comment)
	logger.Info("New file version uploaded",
		zap.Uint64("fileID", file.ID),
		zap.Int("version", file.Version),
		zap.Int64("delta", delta),
		zap.Uint64("subjectID", actor.SubjectID))
	return file, nil
}

// putObject 写入对象并核对实际大小，不一致时删除对象
func (s *fileService) putObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	res, err := s.store.Put(ctx, key, reader, size, contentType)
	if err != nil {
		logger.Error("Failed to put object", zap.String("key", key), zap.Error(err))
		return err
	}
	if res.Size != size {
		s.discardObject(ctx, key)
		return fmt.Errorf("%w: declared size %d, received %d", xerr.ErrInvalidParams, size, res.Size)
	}
	return nil
}

func (s *fileService) releaseQuota(ctx context.Context, spaceID uint64, bytes int64) {
	if err := s.quota.Release(ctx, spaceID, bytes); err != nil {
		logger.Error("Failed to release reserved quota", zap.Uint64("spaceID", spaceID), zap.Int64("bytes", bytes), zap.Error(err))
	}
}

func (s *fileService) discardObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		logger.Warn("Failed to delete orphan object", zap.String("key", key), zap.Error(err))
	}
}
