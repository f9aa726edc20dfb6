package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/handlers"
	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/lock"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq"
	"github.com/3Eeeecho/go-docspace/internal/pkg/storage"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories/memrepo"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"github.com/3Eeeecho/go-docspace/internal/services/export"
	"github.com/3Eeeecho/go-docspace/internal/services/quota"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	secret = "test-secret"
	issuer = "go-docspace"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	engine *gin.Engine
	queue  *mq.MemoryQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	folders := memrepo.NewFolders()
	files := memrepo.NewFiles()
	spaces := memrepo.NewSpaces()
	grantRepo := memrepo.NewGrants()
	tm := memrepo.TxManager{}
	store := storage.NewMemoryStore("test")
	queue := mq.NewMemoryQueue(8)
	locker := lock.NewKeyedMutex()

	resolver := access.NewResolver(folders, files, grantRepo, 64)
	grants := access.NewGrantManager(grantRepo, folders, files, tm, locker, time.Second)
	qm := quota.NewManager(spaces)
	exportSvc := export.NewService(memrepo.NewExportJobs(), folders, files, resolver, store, queue, nil, export.Options{
		URLTTL:   time.Hour,
		TempDir:  t.TempDir(),
		MaxDepth: 64,
	})

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		JWT:    config.JWTConfig{SecretKey: secret, Issuer: issuer},
	}
	engine := InitRouter(cfg, &Handlers{
		Space:  handlers.NewSpaceHandler(explorer.NewSpaceService(spaces, qm)),
		Folder: handlers.NewFolderHandler(explorer.NewFolderService(folders, files, spaces, tm, resolver, grants, qm, 64)),
		File: handlers.NewFileHandler(explorer.NewFileService(files, memrepo.NewVersions(), folders, spaces, tm, store, resolver, qm, locker,
			explorer.NewAuditor(memrepo.NewAccessHistory()), time.Hour, time.Second)),
		Grant:  handlers.NewGrantHandler(grants, resolver),
		Export: handlers.NewExportHandler(exportSvc),
	})
	return &testServer{engine: engine, queue: queue}
}

func token(t *testing.T, subjectID, tenantID uint64) string {
	t.Helper()
	tok, err := utils.GenerateToken(subjectID, tenantID, secret, issuer, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, tok string, folderID uint64, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("folder_id", fmt.Sprint(folderID)))
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// data 解析统一响应中的 data 字段
func data[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out), w.Body.String())
	return out
}

func code(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp xerr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Code
}

func TestPingAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docspace_http_requests_total")
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/spaces", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/spaces", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, xerr.TokenInvalidCode, code(t, w))

	bad, err := utils.GenerateToken(1, 10, "other-secret", issuer, time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/v1/spaces", bad, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGrantFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := token(t, 1, 10)
	guest := token(t, 2, 10)

	w := s.do(t, http.MethodPost, "/api/v1/spaces", owner, gin.H{"module_id": 3, "total_quota_bytes": 1000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	space := data[models.TenantSpace](t, w)

	w = s.do(t, http.MethodPost, "/api/v1/folders", owner, gin.H{"space_id": space.ID, "name": "docs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	root := data[models.Folder](t, w)

	w = s.upload(t, owner, root.ID, "a.txt", "hello")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	file := data[models.File](t, w)

	permPath := fmt.Sprintf("/api/v1/permissions?kind=FILE&id=%d", file.ID)
	w = s.do(t, http.MethodGet, permPath, guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Capabilities{}, data[struct {
		Capabilities models.Capabilities `json:"capabilities"`
	}](t, w).Capabilities)

	// 没有写权限的人不能授权
	w = s.do(t, http.MethodPost, "/api/v1/grants", guest, gin.H{
		"resource_kind": "FOLDER", "resource_id": root.ID, "subject_id": 2,
		"capabilities": gin.H{"read": true},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/grants", owner, gin.H{
		"resource_kind": "FOLDER", "resource_id": root.ID, "subject_id": 2,
		"capabilities": gin.H{"read": true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	grant := data[models.Grant](t, w)

	w = s.do(t, http.MethodGet, permPath, guest, nil)
	assert.Equal(t, models.Capabilities{Read: true}, data[struct {
		Capabilities models.Capabilities `json:"capabilities"`
	}](t, w).Capabilities)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d", file.ID), guest, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d/download", file.ID), guest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d/download", file.ID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/grants/%d", grant.ID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d", file.ID), guest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/grants?kind=FOLDER&id=%d", root.ID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data[[]models.Grant](t, w), 2)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/grants?kind=FOLDER&id=%d&effective=true", root.ID), owner, nil)
	assert.Len(t, data[[]models.Grant](t, w), 1)
}

func TestQuotaAndExportOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := token(t, 1, 10)

	w := s.do(t, http.MethodPost, "/api/v1/spaces", owner, gin.H{"module_id": 1, "total_quota_bytes": 8})
	require.Equal(t, http.StatusCreated, w.Code)
	space := data[models.TenantSpace](t, w)
	w = s.do(t, http.MethodPost, "/api/v1/folders", owner, gin.H{"space_id": space.ID, "name": "docs"})
	require.Equal(t, http.StatusCreated, w.Code)
	root := data[models.Folder](t, w)

	require.Equal(t, http.StatusCreated, s.upload(t, owner, root.ID, "a.txt", "12345").Code)
	w = s.upload(t, owner, root.ID, "b.txt", "12345")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, xerr.QuotaExceededCode, code(t, w))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/spaces/%d/usage", space.ID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), data[quota.Usage](t, w).UsedBytes)

	w = s.do(t, http.MethodPost, "/api/v1/exports", owner, gin.H{"folder_id": root.ID})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := data[models.ExportJob](t, w)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 1, job.TotalFiles)

	task, err := s.queue.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.ID, task.JobID)

	other := token(t, 2, 10)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exports/%d", job.ID), other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exports/%d/cancel", job.ID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := data[models.ExportJob](t, w)
	assert.Equal(t, models.JobFailed, cancelled.Status)
	assert.True(t, strings.Contains(cancelled.ErrorMessage, "cancelled"))
}

func TestBadParameters(t *testing.T) {
	s := newTestServer(t)
	owner := token(t, 1, 10)

	w := s.do(t, http.MethodGet, "/api/v1/folders/abc", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/permissions?kind=DISK&id=1", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/folders/42", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
