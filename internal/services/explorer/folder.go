package explorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/3Eeeecho/go-docspace/internal/services/quota"
	"go.uber.org/zap"
)

type FolderService interface {
	// Create parentID 为 nil 时创建根目录，只有空间创建者可以创建，并自动获得全部权限
	Create(ctx context.Context, actor Actor, spaceID uint64, parentID *uint64, name string, attributes map[string]string) (*models.Folder, error)
	Get(ctx context.Context, actor Actor, folderID uint64) (*models.Folder, error)
	// ListRoots 只返回调用者有读权限的根目录
	ListRoots(ctx context.Context, actor Actor, spaceID uint64) ([]models.Folder, error)
	ListChildren(ctx context.Context, actor Actor, folderID uint64) (*FolderListing, error)
	Rename(ctx context.Context, actor Actor, folderID uint64, newName string) (*models.Folder, error)
	UpdateAttributes(ctx context.Context, actor Actor, folderID uint64, attributes map[string]string) (*models.Folder, error)
	// Delete 级联软删除子目录，包含的文件标记为 DELETED 并归还配额
	Delete(ctx context.Context, actor Actor, folderID uint64) (*DeleteResult, error)
}

type FolderListing struct {
	Folder  *models.Folder  `json:"folder"`
	Folders []models.Folder `json:"folders"`
	Files   []models.File   `json:"files"`
}

type DeleteResult struct {
	Folders       int   `json:"folders"`
	ReleasedBytes int64 `json:"released_bytes"`
}

type folderService struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	spaceRepo  repositories.TenantSpaceRepository
	tm         repositories.TransactionManager
	resolver   access.Resolver
	grants     access.GrantManager
	quota      quota.Manager
	maxDepth   int
}

var _ FolderService = (*folderService)(nil)

func NewFolderService(
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	spaceRepo repositories.TenantSpaceRepository,
	tm repositories.TransactionManager,
	resolver access.Resolver,
	grants access.GrantManager,
	quotaManager quota.Manager,
	maxDepth int,
) FolderService {
	return &folderService{
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		spaceRepo:  spaceRepo,
		tm:         tm,
		resolver:   resolver,
		grants:     grants,
		quota:      quotaManager,
		maxDepth:   maxDepth,
	}
}

func (s *folderService) Create(ctx context.Context, actor Actor, spaceID uint64, parentID *uint64, name string, attributes map[string]string) (*models.Folder, error) {
	if !utils.ValidateName(name) {
		return nil, fmt.Errorf("%w: invalid folder name %q", xerr.ErrInvalidParams, name)
	}

	folder := &models.Folder{
		Name:       name,
		IsActive:   true,
		Attributes: attributes,
		CreatedBy:  actor.SubjectID,
	}

	if parentID == nil {
		space, err := s.spaceRepo.FindByID(ctx, spaceID)
		if err != nil {
			return nil, err
		}
		if !space.IsActive {
			return nil, xerr.ErrSpaceNotFound
		}
		if space.TenantID != actor.TenantID || space.CreatedBy != actor.SubjectID {
			logger.Warn("Root folder creation denied", zap.Uint64("spaceID", spaceID), zap.Uint64("subjectID", actor.SubjectID))
			return nil, xerr.ErrPermissionDenied
		}
		folder.SpaceID = space.ID
		folder.Path = models.ChildPath("", name)
	} else {
		parent, err := activeFolder(ctx, s.folderRepo, *parentID)
		if err != nil {
			return nil, err
		}
		if err := s.resolver.Require(ctx, models.CapWrite, models.FolderRef(parent.ID), actor.SubjectID); err != nil {
			return nil, err
		}
		folder.SpaceID = parent.SpaceID
		folder.ParentID = &parent.ID
		folder.Path = models.ChildPath(parent.Path, name)
	}

	exists, err := s.folderRepo.ExistsByName(ctx, folder.SpaceID, folder.ParentID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: folder %q", xerr.ErrDuplicateName, name)
	}

	err = s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.folderRepo.Create(ctx, folder); err != nil {
			return err
		}
		if folder.ParentID != nil {
			return nil
		}
		_, err := s.grants.Assign(ctx, models.FolderRef(folder.ID), actor.SubjectID, models.FullCapabilities(), actor.SubjectID, nil)
		return err
	})
	if err != nil {
		logger.Error("CreateFolder: failed to create folder", zap.Uint64("spaceID", folder.SpaceID), zap.String("name", name), zap.Error(err))
		return nil, err
	}

	logger.Info("Folder created", zap.Uint64("folderID", folder.ID), zap.String("path", folder.Path), zap.Uint64("subjectID", actor.SubjectID))
	return folder, nil
}

func (s *folderService) Get(ctx context.Context, actor Actor, folderID uint64) (*models.Folder, error) {
	folder, err := activeFolder(ctx, s.folderRepo, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapRead, models.FolderRef(folderID), actor.SubjectID); err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *folderService) ListRoots(ctx context.Context, actor Actor, spaceID uint64) ([]models.Folder, error) {
	space, err := s.spaceRepo.FindByID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space.TenantID != actor.TenantID {
		return nil, xerr.ErrPermissionDenied
	}

	roots, err := s.folderRepo.FindRoots(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	visible := make([]models.Folder, 0, len(roots))
	for _, root := range roots {
		ok, err := s.resolver.CanDo(ctx, models.CapRead, models.FolderRef(root.ID), actor.SubjectID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, root)
		}
	}
	return visible, nil
}

func (s *folderService) ListChildren(ctx context.Context, actor Actor, folderID uint64) (*FolderListing, error) {
	folder, err := s.Get(ctx, actor, folderID)
	if err != nil {
		return nil, err
	}
	folders, err := s.folderRepo.FindChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}
	files, err := s.fileRepo.FindByFolder(ctx, folderID, models.FileStatusActive)
	if err != nil {
		return nil, err
	}
	return &FolderListing{Folder: folder, Folders: folders, Files: files}, nil
}

func (s *folderService) Rename(ctx context.Context, actor Actor, folderID uint64, newName string) (*models.Folder, error) {
	if !utils.ValidateName(newName) {
		return nil, fmt.Errorf("%w: invalid folder name %q", xerr.ErrInvalidParams, newName)
	}
	folder, err := activeFolder(ctx, s.folderRepo, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapWrite, models.FolderRef(folderID), actor.SubjectID); err != nil {
		return nil, err
	}
	if folder.Name == newName {
		return folder, nil
	}

	exists, err := s.folderRepo.ExistsByName(ctx, folder.SpaceID, folder.ParentID, newName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: folder %q", xerr.ErrDuplicateName, newName)
	}

	oldPath := folder.Path
	parentPath := strings.TrimSuffix(oldPath, "/"+folder.Name)
	folder.Name = newName
	folder.Path = models.ChildPath(parentPath, newName)

	err = s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.folderRepo.Update(ctx, folder); err != nil {
			return err
		}
		// 子孙目录的物化路径一并改写
		return s.folderRepo.UpdatePathPrefix(ctx, folder.SpaceID, oldPath, folder.Path)
	})
	if err != nil {
		logger.Error("RenameFolder: failed", zap.Uint64("folderID", folderID), zap.Error(err))
		return nil, err
	}

	logger.Info("Folder renamed", zap.Uint64("folderID", folderID), zap.String("from", oldPath), zap.String("to", folder.Path))
	return folder, nil
}

func (s *folderService) UpdateAttributes(ctx context.Context, actor Actor, folderID uint64, attributes map[string]string) (*models.Folder, error) {
	folder, err := activeFolder(ctx, s.folderRepo, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapWrite, models.FolderRef(folderID), actor.SubjectID); err != nil {
		return nil, err
	}
	folder.Attributes = attributes
	if err := s.folderRepo.Update(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *folderService) Delete(ctx context.Context, actor Actor, folderID uint64) (*DeleteResult, error) {
	folder, err := activeFolder(ctx, s.folderRepo, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, models.CapDelete, models.FolderRef(folderID), actor.SubjectID); err != nil {
		return nil, err
	}

	var ids []uint64
	err = WalkFolders(ctx, s.folderRepo, folder, true, s.maxDepth, func(f *models.Folder, _ string) error {
		ids = append(ids, f.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{Folders: len(ids)}
	err = s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		freed, err := s.fileRepo.MarkDeletedInFolders(ctx, ids)
		if err != nil {
			return err
		}
		if err := s.folderRepo.Deactivate(ctx, ids); err != nil {
			return err
		}
		result.ReleasedBytes = freed
		return s.quota.ApplyDelta(ctx, folder.SpaceID, -freed)
	})
	if err != nil {
		logger.Error("DeleteFolder: failed", zap.Uint64("folderID", folderID), zap.Error(err))
		return nil, err
	}

	logger.Info("Folder deleted",
		zap.Uint64("folderID", folderID),
		zap.Int("folders", result.Folders),
		zap.Int64("releasedBytes", result.ReleasedBytes),
		zap.Uint64("subjectID", actor.SubjectID))
	return result, nil
}
