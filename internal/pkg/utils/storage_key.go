package utils

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildObjectKey 生成文件内容的存储 key
// 格式：<空间前缀>/yyyy/mm/dd/<uuid>_<文件名>
func BuildObjectKey(spacePath, fileName string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s_%s", strings.TrimSuffix(spacePath, "/"), now.Format("2006/01/02"), uuid.NewString(), sanitizeName(fileName))
}

// BuildArchiveKey 批量导出压缩包的存储 key
func BuildArchiveKey() string {
	return fmt.Sprintf("batch-downloads/%s/download.zip", uuid.NewString())
}

// sanitizeName 去掉路径分隔符，避免文件名改变 key 的层级
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// ValidateName 校验文件或目录名
func ValidateName(name string) bool {
	if strings.TrimSpace(name) == "" || len(name) > 255 {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
