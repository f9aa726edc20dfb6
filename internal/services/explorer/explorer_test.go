package explorer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/lock"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/storage"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories/memrepo"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/3Eeeecho/go-docspace/internal/services/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

var (
	owner    = Actor{SubjectID: 1, TenantID: 10}
	stranger = Actor{SubjectID: 2, TenantID: 10}
)

type env struct {
	folders  *memrepo.Folders
	files    *memrepo.Files
	versions *memrepo.Versions
	spaces   *memrepo.Spaces
	history  *memrepo.AccessHistory
	store    *storage.MemoryStore
	grants   access.GrantManager
	spaceSvc SpaceService
	folder   FolderService
	file     FileService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		folders:  memrepo.NewFolders(),
		files:    memrepo.NewFiles(),
		versions: memrepo.NewVersions(),
		spaces:   memrepo.NewSpaces(),
		history:  memrepo.NewAccessHistory(),
		store:    storage.NewMemoryStore("test"),
	}
	grantRepo := memrepo.NewGrants()
	tm := memrepo.TxManager{}
	locker := lock.NewKeyedMutex()
	resolver := access.NewResolver(e.folders, e.files, grantRepo, 64)
	e.grants = access.NewGrantManager(grantRepo, e.folders, e.files, tm, locker, time.Second)
	qm := quota.NewManager(e.spaces)

	e.spaceSvc = NewSpaceService(e.spaces, qm)
	e.folder = NewFolderService(e.folders, e.files, e.spaces, tm, resolver, e.grants, qm, 64)
	e.file = NewFileService(e.files, e.versions, e.folders, e.spaces, tm, e.store, resolver, qm, locker,
		NewAuditor(e.history), time.Hour, time.Second)
	return e
}

// setup 创建配额为 quotaBytes 的空间和一个根目录
func (e *env) setup(t *testing.T, quotaBytes int64) (*models.TenantSpace, *models.Folder) {
	t.Helper()
	ctx := context.Background()
	space, err := e.spaceSvc.Create(ctx, owner, 3, quotaBytes)
	require.NoError(t, err)
	root, err := e.folder.Create(ctx, owner, space.ID, nil, "docs", nil)
	require.NoError(t, err)
	return space, root
}

func (e *env) used(t *testing.T, spaceID uint64) int64 {
	t.Helper()
	s, err := e.spaces.FindByID(context.Background(), spaceID)
	require.NoError(t, err)
	return s.UsedBytes
}

func (e *env) upload(t *testing.T, folderID uint64, name string, size int) (*models.File, error) {
	t.Helper()
	return e.file.Upload(context.Background(), owner, UploadInput{
		FolderID:    folderID,
		Name:        name,
		ContentType: "text/plain",
		Size:        int64(size),
		Reader:      strings.NewReader(strings.Repeat("x", size)),
	})
}

func TestSpace_CreateAndTenantIsolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	space, err := e.spaceSvc.Create(ctx, owner, 3, 1000)
	require.NoError(t, err)
	assert.Equal(t, "clients/10/module_3", space.StoragePath)

	_, err = e.spaceSvc.Create(ctx, owner, 3, 1000)
	assert.ErrorIs(t, err, xerr.ErrSpaceAlreadyExists)

	_, err = e.spaceSvc.Get(ctx, Actor{SubjectID: 1, TenantID: 99}, space.ID)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	_, err = e.spaceSvc.UpdateQuota(ctx, stranger, space.ID, 10)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	updated, err := e.spaceSvc.UpdateQuota(ctx, owner, space.ID, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.TotalQuotaBytes)
}

func TestFolder_RootCreatorGetsFullGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 1000)

	grants, err := e.grants.EffectiveByResource(ctx, models.FolderRef(root.ID))
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.FullCapabilities(), grants[0].Capabilities())

	_, err = e.folder.Create(ctx, stranger, space.ID, nil, "other", nil)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	_, err = e.folder.Create(ctx, stranger, space.ID, &root.ID, "sub", nil)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	_, err = e.folder.Create(ctx, owner, space.ID, nil, "docs", nil)
	assert.ErrorIs(t, err, xerr.ErrDuplicateName)

	roots, err := e.folder.ListRoots(ctx, stranger, space.ID)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestFolder_RenameCascadesPaths(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 1000)

	sub, err := e.folder.Create(ctx, owner, space.ID, &root.ID, "sub", nil)
	require.NoError(t, err)
	leaf, err := e.folder.Create(ctx, owner, space.ID, &sub.ID, "leaf", nil)
	require.NoError(t, err)
	assert.Equal(t, "/docs/sub/leaf", leaf.Path)

	renamed, err := e.folder.Rename(ctx, owner, sub.ID, "renamed")
	require.NoError(t, err)
	assert.Equal(t, "/docs/renamed", renamed.Path)

	got, err := e.folders.FindByID(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "/docs/renamed/leaf", got.Path)
}

func TestFile_UploadQuotaScenario(t *testing.T) {
	e := newEnv(t)
	space, root := e.setup(t, 1000)

	_, err := e.upload(t, root.ID, "base.bin", 900)
	require.NoError(t, err)
	assert.Equal(t, int64(900), e.used(t, space.ID))

	_, err = e.upload(t, root.ID, "big.bin", 150)
	assert.ErrorIs(t, err, xerr.ErrQuotaExceeded)
	assert.Equal(t, int64(900), e.used(t, space.ID))
	assert.Len(t, e.store.Keys(), 1)

	_, err = e.upload(t, root.ID, "small.bin", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(950), e.used(t, space.ID))

	_, err = e.upload(t, root.ID, "small.bin", 1)
	assert.ErrorIs(t, err, xerr.ErrDuplicateName)
}

func TestFile_UploadStorageFailureReleasesQuota(t *testing.T) {
	e := newEnv(t)
	space, root := e.setup(t, 1000)
	e.store.FailPut = func(string) error { return errors.New("backend down") }

	_, err := e.upload(t, root.ID, "a.txt", 100)
	assert.ErrorIs(t, err, xerr.ErrStorageError)
	assert.Equal(t, int64(0), e.used(t, space.ID))
}

func TestFile_UploadRequiresWrite(t *testing.T) {
	e := newEnv(t)
	_, root := e.setup(t, 1000)

	_, err := e.file.Upload(context.Background(), stranger, UploadInput{
		FolderID: root.ID, Name: "x", Size: 1, Reader: strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
}

func TestFile_NewVersionShrinks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 1000)

	file, err := e.upload(t, root.ID, "report.txt", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), e.used(t, space.ID))

	updated, err := e.file.UploadNewVersion(ctx, owner, file.ID, VersionInput{
		Size:    50,
		Reader:  bytes.NewReader(bytes.Repeat([]byte("y"), 50)),
		Comment: "trimmed",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, int64(50), updated.Size)
	assert.Equal(t, int64(50), e.used(t, space.ID))

	prev, rc, err := e.file.DownloadVersion(ctx, owner, file.ID, 1)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, int64(200), prev.Size)
	assert.Len(t, body, 200)
	assert.Equal(t, "trimmed", prev.ChangeComment)

	versions, err := e.file.ListVersions(ctx, owner, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
}

func TestFile_NewVersionGrowthChecksQuota(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 1000)

	file, err := e.upload(t, root.ID, "a.bin", 600)
	require.NoError(t, err)

	_, err = e.file.UploadNewVersion(ctx, owner, file.ID, VersionInput{
		Size: 1100, Reader: bytes.NewReader(make([]byte, 1100)),
	})
	assert.ErrorIs(t, err, xerr.ErrQuotaExceeded)
	assert.Equal(t, int64(600), e.used(t, space.ID))

	// 增长 400 正好用满
	_, err = e.file.UploadNewVersion(ctx, owner, file.ID, VersionInput{
		Size: 1000, Reader: bytes.NewReader(make([]byte, 1000)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), e.used(t, space.ID))
}

func TestFile_DeleteReleasesQuota(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 1000)

	file, err := e.upload(t, root.ID, "a.txt", 300)
	require.NoError(t, err)

	require.NoError(t, e.file.Delete(ctx, owner, file.ID, ClientInfo{}))
	assert.Equal(t, int64(0), e.used(t, space.ID))

	got, err := e.files.FindByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusDeleted, got.Status)
	// 对象保留
	assert.Len(t, e.store.Keys(), 1)

	_, _, err = e.file.Download(ctx, owner, file.ID, ClientInfo{})
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
	assert.ErrorIs(t, e.file.Delete(ctx, owner, file.ID, ClientInfo{}), xerr.ErrNotFound)
}

func TestFolder_DeleteCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 10_000)

	sub, err := e.folder.Create(ctx, owner, space.ID, &root.ID, "sub", nil)
	require.NoError(t, err)
	leaf, err := e.folder.Create(ctx, owner, space.ID, &sub.ID, "leaf", nil)
	require.NoError(t, err)

	_, err = e.upload(t, root.ID, "keep.txt", 100)
	require.NoError(t, err)
	_, err = e.upload(t, sub.ID, "a.txt", 200)
	require.NoError(t, err)
	_, err = e.upload(t, leaf.ID, "b.txt", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(600), e.used(t, space.ID))

	res, err := e.folder.Delete(ctx, owner, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{Folders: 2, ReleasedBytes: 500}, res)
	assert.Equal(t, int64(100), e.used(t, space.ID))

	got, err := e.folders.FindByID(ctx, leaf.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	listing, err := e.folder.ListChildren(ctx, owner, root.ID)
	require.NoError(t, err)
	assert.Empty(t, listing.Folders)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "keep.txt", listing.Files[0].Name)
}

func TestFile_DownloadMarksDownloadedAndAudits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, root := e.setup(t, 1000)

	file, err := e.upload(t, root.ID, "a.txt", 5)
	require.NoError(t, err)
	assert.Equal(t, models.ViewStatusNew, file.ViewStatus)

	got, rc, err := e.file.Download(ctx, owner, file.ID, ClientInfo{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, models.ViewStatusDownloaded, got.ViewStatus)
	assert.Equal(t, "GREEN", got.ViewColor)

	history, err := e.file.History(ctx, owner, file.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ActionDownload, history[0].Action)
	assert.Equal(t, "10.0.0.1", history[0].IPAddress)
	assert.Equal(t, models.ActionUpload, history[1].Action)

	_, _, err = e.file.Download(ctx, stranger, file.ID, ClientInfo{})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
}

func TestFile_GrantOnFileOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, root := e.setup(t, 1000)
	file, err := e.upload(t, root.ID, "shared.txt", 5)
	require.NoError(t, err)

	_, err = e.grants.Assign(ctx, models.FileRef(file.ID), stranger.SubjectID, models.Capabilities{Read: true, Download: true}, owner.SubjectID, nil)
	require.NoError(t, err)

	url, err := e.file.PresignedURL(ctx, stranger, file.ID, ClientInfo{})
	require.NoError(t, err)
	assert.Contains(t, url, file.StorageKey)

	err = e.file.Delete(ctx, stranger, file.ID, ClientInfo{})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
}

func TestFile_UpdateAndViewStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, root := e.setup(t, 1000)
	a, err := e.upload(t, root.ID, "a.txt", 1)
	require.NoError(t, err)
	_, err = e.upload(t, root.ID, "b.txt", 1)
	require.NoError(t, err)

	taken := "b.txt"
	_, err = e.file.Update(ctx, owner, a.ID, UpdateInput{Name: &taken})
	assert.ErrorIs(t, err, xerr.ErrDuplicateName)

	name := "c.txt"
	updated, err := e.file.Update(ctx, owner, a.ID, UpdateInput{Name: &name, Metadata: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "c.txt", updated.Name)
	assert.Equal(t, "v", updated.Metadata["k"])

	viewed, err := e.file.UpdateViewStatus(ctx, owner, a.ID, models.ViewStatusViewed, ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, "YELLOW", viewed.ViewColor)
	assert.NotNil(t, viewed.LastViewedAt)

	_, err = e.file.UpdateViewStatus(ctx, owner, a.ID, models.ViewStatus("PINK"), ClientInfo{})
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
}

func TestWalkFolders_PreorderByName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	space, root := e.setup(t, 1000)
	for _, n := range []string{"b", "a"} {
		_, err := e.folder.Create(ctx, owner, space.ID, &root.ID, n, nil)
		require.NoError(t, err)
	}
	children, err := e.folders.FindChildren(ctx, root.ID)
	require.NoError(t, err)
	_, err = e.folder.Create(ctx, owner, space.ID, &children[0].ID, "z", nil)
	require.NoError(t, err)

	var order []string
	err = WalkFolders(ctx, e.folders, root, true, 64, func(f *models.Folder, rel string) error {
		order = append(order, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "a", "a/z", "b"}, order)

	order = nil
	err = WalkFolders(ctx, e.folders, root, false, 64, func(f *models.Folder, rel string) error {
		order = append(order, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{""}, order)
}
