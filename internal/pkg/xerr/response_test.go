package xerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus int
	}{
		{"nil", nil, SuccessCode, http.StatusOK},
		{"wrapped folder not found", fmt.Errorf("walk: %w", ErrDirectoryNotFound), DirectoryNotFoundCode, http.StatusNotFound},
		{"generic not found", ErrNotFound, NotFoundCode, http.StatusNotFound},
		{"permission", ErrPermissionDenied, PermissionDeniedCode, http.StatusForbidden},
		{"quota", fmt.Errorf("upload: %w", ErrQuotaExceeded), QuotaExceededCode, http.StatusRequestEntityTooLarge},
		{"duplicate", ErrDuplicateName, FileAlreadyExistsCode, http.StatusConflict},
		{"hierarchy", ErrInvalidHierarchy, InvalidHierarchyCode, http.StatusUnprocessableEntity},
		{"storage", ErrStorageError, StorageErrorCode, http.StatusBadGateway},
		{"code error", NewCodeError(QuotaExceededCode, errors.New("boom")), QuotaExceededCode, http.StatusRequestEntityTooLarge},
		{"unknown", errors.New("boom"), InternalServerErrorCode, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, status := Classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestNotFoundFamily(t *testing.T) {
	for _, err := range []error{ErrFileNotFound, ErrDirectoryNotFound, ErrSpaceNotFound, ErrGrantNotFound, ErrExportNotFound, ErrVersionNotFound} {
		assert.True(t, errors.Is(err, ErrNotFound), err.Error())
	}
}

func TestRespond_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Respond(c, errors.New("dial tcp 10.0.0.1:3306: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, InternalServerErrorCode, resp.Code)
	assert.Equal(t, ErrInternalServer.Error(), resp.Message)
}
