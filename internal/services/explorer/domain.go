package explorer

import (
	"context"
	"fmt"
	"path"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"go.uber.org/zap"
)

// Actor 发起请求的主体，来自访问令牌
type Actor struct {
	SubjectID uint64
	TenantID  uint64
}

// ClientInfo 写入审计记录的客户端信息
type ClientInfo struct {
	IPAddress  string
	DeviceInfo string
}

// VisitFunc 遍历目录树时对每个目录调用，relPath 是相对遍历根目录的路径，根目录为 ""
type VisitFunc func(folder *models.Folder, relPath string) error

// WalkFolders 从 root 开始深度优先先序遍历有效目录，同级按名称排序
// 计数和打包都使用这一遍历，保证两次看到的顺序一致
func WalkFolders(ctx context.Context, folderRepo repositories.FolderRepository, root *models.Folder, recursive bool, maxDepth int, visit VisitFunc) error {
	type frame struct {
		folder  models.Folder
		relPath string
		depth   int
	}

	stack := []frame{{folder: *root}}
	seen := map[uint64]struct{}{}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[top.folder.ID]; ok {
			logger.Error("WalkFolders: folder visited twice", zap.Uint64("folderID", top.folder.ID), zap.Uint64("rootID", root.ID))
			return fmt.Errorf("%w: folder %d reachable twice", xerr.ErrInvalidHierarchy, top.folder.ID)
		}
		seen[top.folder.ID] = struct{}{}

		if err := visit(&top.folder, top.relPath); err != nil {
			return err
		}
		if !recursive {
			continue
		}
		if maxDepth > 0 && top.depth >= maxDepth {
			return fmt.Errorf("%w: subtree deeper than %d", xerr.ErrInvalidHierarchy, maxDepth)
		}

		children, err := folderRepo.FindChildren(ctx, top.folder.ID)
		if err != nil {
			return err
		}
		// 逆序入栈，出栈时按名称顺序
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if child.SpaceID != root.SpaceID {
				return fmt.Errorf("%w: folder %d crosses tenant space", xerr.ErrInvalidHierarchy, child.ID)
			}
			stack = append(stack, frame{
				folder:  child,
				relPath: path.Join(top.relPath, child.Name),
				depth:   top.depth + 1,
			})
		}
	}
	return nil
}

// activeFolder 查询目录并要求其有效
func activeFolder(ctx context.Context, folderRepo repositories.FolderRepository, id uint64) (*models.Folder, error) {
	folder, err := folderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !folder.IsActive {
		return nil, xerr.ErrDirectoryNotFound
	}
	return folder, nil
}

// activeFile 查询文件并要求其未被删除
func activeFile(ctx context.Context, fileRepo repositories.FileRepository, id uint64) (*models.File, error) {
	file, err := fileRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !file.IsActive() {
		return nil, xerr.ErrFileNotFound
	}
	return file, nil
}
