package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

// newMockDB 返回走 MySQL 方言的 gorm 连接，SQL 由 sqlmock 应答
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

func countRows(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func TestTenantSpaceRepository_AddUsedAtZeroFloor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTenantSpaceRepository(db)

	// used_bytes 已为 0，GREATEST 结果不变，MySQL 报告 0 行
	mock.ExpectExec("UPDATE `tenant_spaces` SET `used_bytes`=GREATEST").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `tenant_spaces`").
		WillReturnRows(countRows(1))

	require.NoError(t, repo.AddUsed(context.Background(), 7, -100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantSpaceRepository_AddUsedMissingSpace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTenantSpaceRepository(db)

	mock.ExpectExec("UPDATE `tenant_spaces` SET `used_bytes`=GREATEST").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `tenant_spaces`").
		WillReturnRows(countRows(0))

	assert.ErrorIs(t, repo.AddUsed(context.Background(), 7, -100), xerr.ErrSpaceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantSpaceRepository_AddUsedChangedRowSkipsLookup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTenantSpaceRepository(db)

	mock.ExpectExec("UPDATE `tenant_spaces` SET `used_bytes`=GREATEST").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddUsed(context.Background(), 7, 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantSpaceRepository_UpdateQuotaUnchanged(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTenantSpaceRepository(db)

	mock.ExpectExec("UPDATE `tenant_spaces` SET `total_quota_bytes`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `tenant_spaces`").
		WillReturnRows(countRows(1))

	require.NoError(t, repo.UpdateQuota(context.Background(), 7, 1024))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepository_RequestCancelTwice(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewExportJobRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE `export_jobs` SET `cancel_requested`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `export_jobs` SET `cancel_requested`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM `export_jobs`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "cancel_requested"}).AddRow(5, "PROCESSING", true))

	ok, err := repo.RequestCancel(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RequestCancel(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepository_RequestCancelFinishedJob(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewExportJobRepository(db)

	mock.ExpectExec("UPDATE `export_jobs` SET `cancel_requested`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM `export_jobs`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "cancel_requested"}).AddRow(5, "COMPLETED", false))

	ok, err := repo.RequestCancel(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
