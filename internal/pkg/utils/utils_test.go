package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildObjectKey(t *testing.T) {
	now := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	key := BuildObjectKey("clients/7/module_2", "report.pdf", now)

	assert.True(t, strings.HasPrefix(key, "clients/7/module_2/2024/03/07/"), key)
	assert.True(t, strings.HasSuffix(key, "_report.pdf"), key)
}

func TestBuildObjectKey_StripsSeparators(t *testing.T) {
	key := BuildObjectKey("clients/1/module_1", "../../etc/passwd", time.Now())
	assert.True(t, strings.HasSuffix(key, "_passwd"), key)
	assert.NotContains(t, key, "..")
}

func TestBuildArchiveKey(t *testing.T) {
	a, b := BuildArchiveKey(), BuildArchiveKey()
	assert.True(t, strings.HasPrefix(a, "batch-downloads/"))
	assert.True(t, strings.HasSuffix(a, "/download.zip"))
	assert.NotEqual(t, a, b)
}

func TestValidateName(t *testing.T) {
	assert.True(t, ValidateName("docs"))
	assert.False(t, ValidateName(""))
	assert.False(t, ValidateName("  "))
	assert.False(t, ValidateName(".."))
	assert.False(t, ValidateName("a/b"))
}

func TestToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken(42, 7, "secret", "go-docspace", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret", "go-docspace")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.SubjectID)
	assert.Equal(t, uint64(7), claims.TenantID)
}

func TestToken_Rejected(t *testing.T) {
	token, err := GenerateToken(42, 0, "secret", "go-docspace", time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret", "go-docspace")
	assert.Error(t, err)

	_, err = ParseToken(token, "secret", "someone-else")
	assert.Error(t, err)

	expired, err := GenerateToken(42, 0, "secret", "go-docspace", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, "secret", "go-docspace")
	assert.Error(t, err)
}
