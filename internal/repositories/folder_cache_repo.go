package repositories

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	folderCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docspace_folder_cache_hits_total",
		Help: "Folder lookups served from the in-process LRU cache.",
	})
	folderCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docspace_folder_cache_misses_total",
		Help: "Folder lookups that fell through to the database.",
	})
)

// cachedFolderRepository 在目录仓储前加一层进程内 LRU
// 权限解析会沿父链反复读取同一批目录，缓存只覆盖 FindByID
type cachedFolderRepository struct {
	next  FolderRepository
	cache *expirable.LRU[uint64, models.Folder]
}

var _ FolderRepository = (*cachedFolderRepository)(nil)

// NewCachedFolderRepository size<=0 时直接返回 next
func NewCachedFolderRepository(next FolderRepository, size int, ttl time.Duration) FolderRepository {
	if size <= 0 {
		return next
	}
	return &cachedFolderRepository{
		next:  next,
		cache: expirable.NewLRU[uint64, models.Folder](size, nil, ttl),
	}
}

func (r *cachedFolderRepository) FindByID(ctx context.Context, id uint64) (*models.Folder, error) {
	if folder, ok := r.cache.Get(id); ok {
		folderCacheHits.Inc()
		return &folder, nil
	}
	folderCacheMisses.Inc()

	folder, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// 事务内读到的数据可能回滚，不写入缓存
	if !inTransaction(ctx) {
		r.cache.Add(id, *folder)
	}
	return folder, nil
}

func (r *cachedFolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	return r.next.Create(ctx, folder)
}

func (r *cachedFolderRepository) Update(ctx context.Context, folder *models.Folder) error {
	r.cache.Remove(folder.ID)
	return r.next.Update(ctx, folder)
}

func (r *cachedFolderRepository) FindChildren(ctx context.Context, parentID uint64) ([]models.Folder, error) {
	return r.next.FindChildren(ctx, parentID)
}

func (r *cachedFolderRepository) FindRoots(ctx context.Context, spaceID uint64) ([]models.Folder, error) {
	return r.next.FindRoots(ctx, spaceID)
}

func (r *cachedFolderRepository) ExistsByName(ctx context.Context, spaceID uint64, parentID *uint64, name string) (bool, error) {
	return r.next.ExistsByName(ctx, spaceID, parentID, name)
}

// 批量改写路径影响的行数未知，整体清空
func (r *cachedFolderRepository) UpdatePathPrefix(ctx context.Context, spaceID uint64, oldPrefix, newPrefix string) error {
	r.cache.Purge()
	return r.next.UpdatePathPrefix(ctx, spaceID, oldPrefix, newPrefix)
}

func (r *cachedFolderRepository) Deactivate(ctx context.Context, ids []uint64) error {
	for _, id := range ids {
		r.cache.Remove(id)
	}
	return r.next.Deactivate(ctx, ids)
}
