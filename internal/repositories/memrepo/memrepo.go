// Package memrepo 提供仓储接口的内存实现，供服务层测试使用
package memrepo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"gorm.io/gorm"
)

// TxManager 直接执行 fn，不提供回滚
type TxManager struct{}

var _ repositories.TransactionManager = TxManager{}

func (TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func sameParent(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ---------- folders ----------

type Folders struct {
	mu     sync.Mutex
	rows   map[uint64]models.Folder
	nextID uint64
	Reads  int // FindByID 调用次数
}

var _ repositories.FolderRepository = (*Folders)(nil)

func NewFolders() *Folders {
	return &Folders{rows: make(map[uint64]models.Folder)}
}

func (r *Folders) Create(_ context.Context, folder *models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if folder.ID == 0 {
		r.nextID++
		folder.ID = r.nextID
	} else if folder.ID > r.nextID {
		r.nextID = folder.ID
	}
	now := time.Now()
	folder.CreatedAt, folder.UpdatedAt = now, now
	r.rows[folder.ID] = *folder
	return nil
}

func (r *Folders) Update(_ context.Context, folder *models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[folder.ID]; !ok {
		return xerr.ErrDirectoryNotFound
	}
	folder.UpdatedAt = time.Now()
	r.rows[folder.ID] = *folder
	return nil
}

func (r *Folders) FindByID(_ context.Context, id uint64) (*models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reads++
	f, ok := r.rows[id]
	if !ok {
		return nil, xerr.ErrDirectoryNotFound
	}
	return &f, nil
}

func (r *Folders) FindChildren(_ context.Context, parentID uint64) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Folder
	for _, f := range r.rows {
		if f.IsActive && f.ParentID != nil && *f.ParentID == parentID {
			out = append(out, f)
		}
	}
	sortFolders(out)
	return out, nil
}

func (r *Folders) FindRoots(_ context.Context, spaceID uint64) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Folder
	for _, f := range r.rows {
		if f.IsActive && f.SpaceID == spaceID && f.ParentID == nil {
			out = append(out, f)
		}
	}
	sortFolders(out)
	return out, nil
}

func (r *Folders) ExistsByName(_ context.Context, spaceID uint64, parentID *uint64, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.rows {
		if f.IsActive && f.SpaceID == spaceID && f.Name == name && sameParent(f.ParentID, parentID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Folders) UpdatePathPrefix(_ context.Context, spaceID uint64, oldPrefix, newPrefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.rows {
		if f.SpaceID == spaceID && strings.HasPrefix(f.Path, oldPrefix+"/") {
			f.Path = newPrefix + strings.TrimPrefix(f.Path, oldPrefix)
			r.rows[id] = f
		}
	}
	return nil
}

func (r *Folders) Deactivate(_ context.Context, ids []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if f, ok := r.rows[id]; ok {
			f.IsActive = false
			r.rows[id] = f
		}
	}
	return nil
}

func sortFolders(fs []models.Folder) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Name != fs[j].Name {
			return fs[i].Name < fs[j].Name
		}
		return fs[i].ID < fs[j].ID
	})
}

// ---------- files ----------

type Files struct {
	mu     sync.Mutex
	rows   map[uint64]models.File
	nextID uint64
}

var _ repositories.FileRepository = (*Files)(nil)

func NewFiles() *Files {
	return &Files{rows: make(map[uint64]models.File)}
}

func (r *Files) Create(_ context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if file.ID == 0 {
		r.nextID++
		file.ID = r.nextID
	} else if file.ID > r.nextID {
		r.nextID = file.ID
	}
	now := time.Now()
	file.CreatedAt, file.UpdatedAt = now, now
	r.rows[file.ID] = *file
	return nil
}

func (r *Files) Update(_ context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[file.ID]; !ok {
		return xerr.ErrFileNotFound
	}
	file.UpdatedAt = time.Now()
	r.rows[file.ID] = *file
	return nil
}

func (r *Files) FindByID(_ context.Context, id uint64) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok {
		return nil, xerr.ErrFileNotFound
	}
	return &f, nil
}

func (r *Files) FindByFolder(_ context.Context, folderID uint64, status models.FileStatus) ([]models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.File
	for _, f := range r.rows {
		if f.FolderID == folderID && f.Status == status {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Files) CountByFolder(ctx context.Context, folderID uint64, status models.FileStatus) (int64, error) {
	files, _ := r.FindByFolder(ctx, folderID, status)
	return int64(len(files)), nil
}

func (r *Files) ExistsByName(_ context.Context, folderID uint64, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.rows {
		if f.FolderID == folderID && f.Name == name && f.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *Files) MarkDeletedInFolders(_ context.Context, folderIDs []uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := make(map[uint64]bool, len(folderIDs))
	for _, id := range folderIDs {
		in[id] = true
	}
	var freed int64
	for id, f := range r.rows {
		if in[f.FolderID] && f.IsActive() {
			freed += f.Size
			f.Status = models.FileStatusDeleted
			r.rows[id] = f
		}
	}
	return freed, nil
}

func (r *Files) UpdateViewStatus(_ context.Context, id uint64, status models.ViewStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok {
		return xerr.ErrFileNotFound
	}
	f.SetViewStatus(status, at)
	r.rows[id] = f
	return nil
}

func (r *Files) MarkNotDownloaded(_ context.Context, ids []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		f, ok := r.rows[id]
		if !ok || f.ViewStatus == models.ViewStatusDownloaded {
			continue
		}
		f.ViewStatus = models.ViewStatusNotDownloaded
		f.ViewColor = models.ViewStatusNotDownloaded.Color()
		r.rows[id] = f
	}
	return nil
}

// ---------- file versions ----------

type Versions struct {
	mu     sync.Mutex
	rows   []models.FileVersion
	nextID uint64
}

var _ repositories.FileVersionRepository = (*Versions)(nil)

func NewVersions() *Versions {
	return &Versions{}
}

func (r *Versions) Create(_ context.Context, v *models.FileVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.FileID == v.FileID && existing.VersionNumber == v.VersionNumber {
			return fmt.Errorf("failed to create file version: %w", gorm.ErrDuplicatedKey)
		}
	}
	r.nextID++
	v.ID = r.nextID
	v.CreatedAt = time.Now()
	r.rows = append(r.rows, *v)
	return nil
}

func (r *Versions) FindByFileID(_ context.Context, fileID uint64) ([]models.FileVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FileVersion
	for _, v := range r.rows {
		if v.FileID == fileID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (r *Versions) FindByNumber(_ context.Context, fileID uint64, number int) (*models.FileVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.rows {
		if v.FileID == fileID && v.VersionNumber == number {
			out := v
			return &out, nil
		}
	}
	return nil, xerr.ErrVersionNotFound
}

// ---------- tenant spaces ----------

type Spaces struct {
	mu     sync.Mutex
	rows   map[uint64]models.TenantSpace
	nextID uint64
}

var _ repositories.TenantSpaceRepository = (*Spaces)(nil)

func NewSpaces() *Spaces {
	return &Spaces{rows: make(map[uint64]models.TenantSpace)}
}

func (r *Spaces) Create(_ context.Context, space *models.TenantSpace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.TenantID == space.TenantID && s.ModuleID == space.ModuleID {
			return xerr.ErrSpaceAlreadyExists
		}
	}
	if space.ID == 0 {
		r.nextID++
		space.ID = r.nextID
	} else if space.ID > r.nextID {
		r.nextID = space.ID
	}
	r.rows[space.ID] = *space
	return nil
}

func (r *Spaces) FindByID(_ context.Context, id uint64) (*models.TenantSpace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, xerr.ErrSpaceNotFound
	}
	return &s, nil
}

func (r *Spaces) FindByTenantModule(_ context.Context, tenantID, moduleID uint64) (*models.TenantSpace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.TenantID == tenantID && s.ModuleID == moduleID {
			return &s, nil
		}
	}
	return nil, xerr.ErrSpaceNotFound
}

func (r *Spaces) ListByTenant(_ context.Context, tenantID uint64) ([]models.TenantSpace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TenantSpace
	for _, s := range r.rows {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

func (r *Spaces) UpdateQuota(_ context.Context, id uint64, totalBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return xerr.ErrSpaceNotFound
	}
	s.TotalQuotaBytes = totalBytes
	r.rows[id] = s
	return nil
}

func (r *Spaces) TryReserve(_ context.Context, id uint64, bytes int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !s.IsActive || s.UsedBytes+bytes > s.TotalQuotaBytes {
		return false, nil
	}
	s.UsedBytes += bytes
	r.rows[id] = s
	return true, nil
}

func (r *Spaces) AddUsed(_ context.Context, id uint64, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return xerr.ErrSpaceNotFound
	}
	s.UsedBytes = max(s.UsedBytes+delta, 0)
	r.rows[id] = s
	return nil
}

// ---------- grants ----------

type Grants struct {
	mu     sync.Mutex
	rows   map[uint64]models.Grant
	nextID uint64
}

var _ repositories.GrantRepository = (*Grants)(nil)

func NewGrants() *Grants {
	return &Grants{rows: make(map[uint64]models.Grant)}
}

func (r *Grants) Create(_ context.Context, grant *models.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.rows {
		if g.ResourceKind == grant.ResourceKind && g.ResourceID == grant.ResourceID && g.SubjectID == grant.SubjectID {
			return fmt.Errorf("failed to create grant: %w", gorm.ErrDuplicatedKey)
		}
	}
	r.nextID++
	grant.ID = r.nextID
	grant.UpdatedAt = time.Now()
	r.rows[grant.ID] = *grant
	return nil
}

func (r *Grants) Update(_ context.Context, grant *models.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[grant.ID]; !ok {
		return xerr.ErrGrantNotFound
	}
	grant.UpdatedAt = time.Now()
	r.rows[grant.ID] = *grant
	return nil
}

func (r *Grants) FindByID(_ context.Context, id uint64) (*models.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.rows[id]
	if !ok {
		return nil, xerr.ErrGrantNotFound
	}
	return &g, nil
}

func (r *Grants) FindByResourceSubject(_ context.Context, ref models.ResourceRef, subjectID uint64) (*models.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.rows {
		if g.Resource() == ref && g.SubjectID == subjectID {
			return &g, nil
		}
	}
	return nil, xerr.ErrGrantNotFound
}

func (r *Grants) FindActive(_ context.Context, ref models.ResourceRef, subjectID uint64, now time.Time) (*models.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.rows {
		if g.Resource() == ref && g.SubjectID == subjectID && g.EffectiveAt(now) {
			return &g, nil
		}
	}
	return nil, xerr.ErrGrantNotFound
}

func (r *Grants) ListByResource(_ context.Context, ref models.ResourceRef) ([]models.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Grant
	for _, g := range r.rows {
		if g.Resource() == ref {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Grants) ListBySubject(_ context.Context, subjectID uint64) ([]models.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Grant
	for _, g := range r.rows {
		if g.SubjectID == subjectID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- export jobs ----------

type ExportJobs struct {
	mu     sync.Mutex
	rows   map[uint64]models.ExportJob
	nextID uint64
}

var _ repositories.ExportJobRepository = (*ExportJobs)(nil)

func NewExportJobs() *ExportJobs {
	return &ExportJobs{rows: make(map[uint64]models.ExportJob)}
}

func (r *ExportJobs) Create(_ context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.ID = r.nextID
	job.CreatedAt = time.Now()
	r.rows[job.ID] = *job
	return nil
}

func (r *ExportJobs) FindByID(_ context.Context, id uint64) (*models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok {
		return nil, xerr.ErrExportNotFound
	}
	return &j, nil
}

func (r *ExportJobs) ListByRequester(_ context.Context, requesterID uint64) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ExportJob
	for _, j := range r.rows {
		if j.RequesterID == requesterID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *ExportJobs) Transition(_ context.Context, id uint64, from, to models.JobStatus, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	if err := applyJobUpdates(&j, updates); err != nil {
		return false, err
	}
	r.rows[id] = j
	return true, nil
}

func (r *ExportJobs) UpdateProgress(_ context.Context, id uint64, processed, failed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok || j.Status != models.JobProcessing {
		return nil
	}
	j.ProcessedFiles, j.FailedFiles = processed, failed
	r.rows[id] = j
	return nil
}

func (r *ExportJobs) RequestCancel(_ context.Context, id uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.CancelRequested = true
	r.rows[id] = j
	return true, nil
}

func (r *ExportJobs) IsCancelRequested(_ context.Context, id uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok {
		return false, xerr.ErrExportNotFound
	}
	return j.CancelRequested, nil
}

func (r *ExportJobs) FindStale(_ context.Context, startedBefore time.Time) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ExportJob
	for _, j := range r.rows {
		if j.Status == models.JobProcessing && j.StartedAt != nil && j.StartedAt.Before(startedBefore) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *ExportJobs) FindUnclaimed(_ context.Context, createdBefore time.Time) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ExportJob
	for _, j := range r.rows {
		if j.Status == models.JobPending && j.CreatedAt.Before(createdBefore) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Put 直接写入一行，测试构造任意状态时使用
func (r *ExportJobs) Put(job models.ExportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID > r.nextID {
		r.nextID = job.ID
	}
	r.rows[job.ID] = job
}

func applyJobUpdates(j *models.ExportJob, updates map[string]any) error {
	for k, v := range updates {
		switch k {
		case "started_at":
			t := v.(time.Time)
			j.StartedAt = &t
		case "completed_at":
			t := v.(time.Time)
			j.CompletedAt = &t
		case "download_url":
			j.DownloadURL = v.(string)
		case "archive_key":
			j.ArchiveKey = v.(string)
		case "archive_size":
			j.ArchiveSize = v.(int64)
		case "error_message":
			j.ErrorMessage = v.(string)
		case "processed_files":
			j.ProcessedFiles = v.(int)
		case "failed_files":
			j.FailedFiles = v.(int)
		case "expiration_time":
			j.ExpirationTime = v.(time.Time)
		default:
			return fmt.Errorf("memrepo: unsupported export job column %q", k)
		}
	}
	return nil
}

// ---------- access history ----------

type AccessHistory struct {
	mu   sync.Mutex
	rows []models.FileAccessHistory
}

var _ repositories.AccessHistoryRepository = (*AccessHistory)(nil)

func NewAccessHistory() *AccessHistory {
	return &AccessHistory{}
}

func (r *AccessHistory) Create(_ context.Context, entry *models.FileAccessHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uint64(len(r.rows) + 1)
	r.rows = append(r.rows, *entry)
	return nil
}

func (r *AccessHistory) ListByFile(_ context.Context, fileID uint64, limit int) ([]models.FileAccessHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FileAccessHistory
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].FileID == fileID {
			out = append(out, r.rows[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
