package access

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/lock"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	folders *memrepo.Folders
	files   *memrepo.Files
	grants  *memrepo.Grants
	res     *resolver
	mgr     *grantManager
}

func ptr[T any](v T) *T { return &v }

// 树结构：/A(1) -> /A/B(2) -> doc(10)，都在空间 1
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		folders: memrepo.NewFolders(),
		files:   memrepo.NewFiles(),
		grants:  memrepo.NewGrants(),
	}
	require.NoError(t, f.folders.Create(ctx, &models.Folder{ID: 1, SpaceID: 1, Name: "A", Path: "/A", IsActive: true}))
	require.NoError(t, f.folders.Create(ctx, &models.Folder{ID: 2, SpaceID: 1, ParentID: ptr(uint64(1)), Name: "B", Path: "/A/B", IsActive: true}))
	require.NoError(t, f.files.Create(ctx, &models.File{ID: 10, FolderID: 2, Name: "doc", Status: models.FileStatusActive}))

	f.res = NewResolver(f.folders, f.files, f.grants, 8).(*resolver)
	f.res.now = func() time.Time { return fixedNow }
	f.mgr = NewGrantManager(f.grants, f.folders, f.files, memrepo.TxManager{}, lock.NewKeyedMutex(), time.Second).(*grantManager)
	f.mgr.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) grant(t *testing.T, ref models.ResourceRef, subject uint64, caps models.Capabilities, mutate ...func(*models.Grant)) *models.Grant {
	t.Helper()
	g := &models.Grant{
		ResourceKind: ref.Kind,
		ResourceID:   ref.ID,
		SubjectID:    subject,
		GrantedBy:    99,
		GrantedAt:    fixedNow.Add(-time.Hour),
		ValidFrom:    fixedNow.Add(-time.Hour),
		Active:       true,
	}
	g.SetCapabilities(caps)
	for _, fn := range mutate {
		fn(g)
	}
	require.NoError(t, f.grants.Create(context.Background(), g))
	return g
}

func TestResolver_FolderGrantWinsOverFalseFileFlag(t *testing.T) {
	f := newFixture(t)
	f.grant(t, models.FolderRef(1), 1, models.Capabilities{Read: true})
	f.grant(t, models.FileRef(10), 1, models.Capabilities{Read: false})

	ok, err := f.res.CanDo(context.Background(), models.CapRead, models.FileRef(10), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_InheritsDownwardOnly(t *testing.T) {
	f := newFixture(t)
	f.grant(t, models.FolderRef(2), 1, models.Capabilities{Write: true})
	ctx := context.Background()

	cases := []struct {
		ref  models.ResourceRef
		want bool
	}{
		{models.FolderRef(1), false},
		{models.FolderRef(2), true},
		{models.FileRef(10), true},
	}
	for _, tc := range cases {
		ok, err := f.res.CanDo(ctx, models.CapWrite, tc.ref, 1)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, tc.ref.String())
	}

	// 其他主体和其他能力不受影响
	ok, err := f.res.CanDo(ctx, models.CapWrite, models.FileRef(10), 2)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.res.CanDo(ctx, models.CapDelete, models.FileRef(10), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_FileGrantAllowsWithoutFolderGrant(t *testing.T) {
	f := newFixture(t)
	f.grant(t, models.FileRef(10), 1, models.Capabilities{Download: true})

	ok, err := f.res.CanDo(context.Background(), models.CapDownload, models.FileRef(10), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.res.CanDo(context.Background(), models.CapDownload, models.FolderRef(2), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_IgnoresInertGrants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Grant)
	}{
		{"expired", func(g *models.Grant) { g.ValidUntil = ptr(fixedNow.Add(-time.Minute)) }},
		{"valid until now", func(g *models.Grant) { g.ValidUntil = ptr(fixedNow) }},
		{"not yet valid", func(g *models.Grant) { g.ValidFrom = fixedNow.Add(time.Minute) }},
		{"revoked", func(g *models.Grant) { g.Active = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.grant(t, models.FolderRef(1), 1, models.FullCapabilities(), tt.mutate)

			ok, err := f.res.CanDo(context.Background(), models.CapRead, models.FileRef(10), 1)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestResolver_CycleIsInvalidHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.folders.FindByID(ctx, 1)
	require.NoError(t, err)
	a.ParentID = ptr(uint64(2))
	require.NoError(t, f.folders.Update(ctx, a))

	_, err = f.res.CanDo(ctx, models.CapRead, models.FileRef(10), 1)
	assert.ErrorIs(t, err, xerr.ErrInvalidHierarchy)
}

func TestResolver_DepthLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := uint64(2)
	for id := uint64(3); id <= 12; id++ {
		require.NoError(t, f.folders.Create(ctx, &models.Folder{ID: id, SpaceID: 1, ParentID: ptr(parent), Name: "d", IsActive: true}))
		parent = id
	}

	_, err := f.res.CanDo(ctx, models.CapRead, models.FolderRef(12), 1)
	assert.ErrorIs(t, err, xerr.ErrInvalidHierarchy)
}

func TestResolver_CrossSpaceParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.folders.Create(ctx, &models.Folder{ID: 50, SpaceID: 2, ParentID: ptr(uint64(1)), Name: "x", IsActive: true}))
	f.grant(t, models.FolderRef(1), 1, models.FullCapabilities())

	_, err := f.res.CanDo(ctx, models.CapRead, models.FolderRef(50), 1)
	assert.ErrorIs(t, err, xerr.ErrInvalidHierarchy)
}

func TestResolver_MissingResourceIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.res.CanDo(ctx, models.CapRead, models.FileRef(404), 1)
	assert.ErrorIs(t, err, xerr.ErrNotFound)

	require.NoError(t, f.files.Create(ctx, &models.File{ID: 11, FolderID: 777, Name: "orphan", Status: models.FileStatusActive}))
	_, err = f.res.CanDo(ctx, models.CapRead, models.FileRef(11), 1)
	assert.ErrorIs(t, err, xerr.ErrDirectoryNotFound)
}

func TestResolver_Capabilities(t *testing.T) {
	f := newFixture(t)
	f.grant(t, models.FolderRef(1), 1, models.Capabilities{Read: true})
	f.grant(t, models.FileRef(10), 1, models.Capabilities{Download: true})

	caps, err := f.res.Capabilities(context.Background(), models.FileRef(10), 1)
	require.NoError(t, err)
	assert.Equal(t, models.Capabilities{Read: true, Download: true}, caps)
}

func TestResolver_Require(t *testing.T) {
	f := newFixture(t)
	err := f.res.Require(context.Background(), models.CapDelete, models.FolderRef(2), 1)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	f.grant(t, models.FolderRef(1), 1, models.Capabilities{Delete: true})
	assert.NoError(t, f.res.Require(context.Background(), models.CapDelete, models.FolderRef(2), 1))
}

func TestGrantManager_AssignUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.mgr.Assign(ctx, models.FolderRef(1), 7, models.Capabilities{Read: true}, 99, nil)
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.Equal(t, fixedNow, first.ValidFrom)

	until := fixedNow.Add(24 * time.Hour)
	second, err := f.mgr.Assign(ctx, models.FolderRef(1), 7, models.Capabilities{Read: true, Write: true}, 100, &until)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, uint64(100), second.GrantedBy)
	assert.Equal(t, &until, second.ValidUntil)

	all, err := f.mgr.ListByResource(ctx, models.FolderRef(1))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].CanWrite)
}

func TestGrantManager_RevokeThenReassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.mgr.Assign(ctx, models.FolderRef(1), 7, models.Capabilities{Read: true}, 99, nil)
	require.NoError(t, err)

	ok, err := f.res.CanDo(ctx, models.CapRead, models.FileRef(10), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := f.mgr.Revoke(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, revoked.Active)

	ok, err = f.res.CanDo(ctx, models.CapRead, models.FileRef(10), 7)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := f.mgr.Assign(ctx, models.FolderRef(1), 7, models.Capabilities{Read: true}, 99, nil)
	require.NoError(t, err)
	assert.Equal(t, g.ID, again.ID)
	assert.True(t, again.Active)

	all, err := f.mgr.ListByResource(ctx, models.FolderRef(1))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGrantManager_ConcurrentAssignKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.mgr.Assign(ctx, models.FileRef(10), 3, models.Capabilities{Read: i%2 == 0, Download: true}, 99, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := f.mgr.ListByResource(ctx, models.FileRef(10))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGrantManager_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Assign(ctx, models.FolderRef(404), 7, models.FullCapabilities(), 99, nil)
	assert.ErrorIs(t, err, xerr.ErrNotFound)

	past := fixedNow.Add(-time.Second)
	_, err = f.mgr.Assign(ctx, models.FolderRef(1), 7, models.FullCapabilities(), 99, &past)
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)

	_, err = f.mgr.Revoke(ctx, 12345)
	assert.ErrorIs(t, err, xerr.ErrGrantNotFound)
}

func TestGrantManager_EffectiveByResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, models.FolderRef(1), 1, models.Capabilities{Read: true})
	f.grant(t, models.FolderRef(1), 2, models.Capabilities{Read: true}, func(g *models.Grant) { g.Active = false })
	f.grant(t, models.FolderRef(1), 3, models.Capabilities{Read: true}, func(g *models.Grant) { g.ValidUntil = ptr(fixedNow.Add(-time.Minute)) })

	all, err := f.mgr.ListByResource(ctx, models.FolderRef(1))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	effective, err := f.mgr.EffectiveByResource(ctx, models.FolderRef(1))
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, uint64(1), effective[0].SubjectID)
}

func TestGrantManager_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.grant(t, models.FolderRef(1), 1, models.Capabilities{Read: true})

	updated, err := f.mgr.Update(ctx, g.ID, models.Capabilities{Read: true, Delete: true}, nil, 55)
	require.NoError(t, err)
	assert.True(t, updated.CanDelete)
	assert.Equal(t, uint64(55), updated.GrantedBy)

	ok, err := f.res.CanDo(ctx, models.CapDelete, models.FileRef(10), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

// revokeOnFirstRead 在第一次 FindByID 返回前插入一次撤销，模拟并发的 Revoke
type revokeOnFirstRead struct {
	*memrepo.Grants
	once   sync.Once
	revoke func()
}

func (r *revokeOnFirstRead) FindByID(ctx context.Context, id uint64) (*models.Grant, error) {
	g, err := r.Grants.FindByID(ctx, id)
	r.once.Do(r.revoke)
	return g, err
}

func TestGrantManager_UpdateDoesNotResurrectRevokedGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.grant(t, models.FolderRef(1), 1, models.Capabilities{Read: true})

	// 另一个实例共用同一把锁，直接读写底层仓储
	other := NewGrantManager(f.grants, f.folders, f.files, memrepo.TxManager{}, f.mgr.locker, time.Second)
	racing := &revokeOnFirstRead{Grants: f.grants}
	racing.revoke = func() {
		_, err := other.Revoke(ctx, g.ID)
		require.NoError(t, err)
	}
	f.mgr.grantRepo = racing

	updated, err := f.mgr.Update(ctx, g.ID, models.Capabilities{Read: true, Write: true}, nil, 55)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.True(t, updated.CanWrite)

	stored, err := f.grants.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	ok, err := f.res.CanDo(ctx, models.CapRead, models.FolderRef(1), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
