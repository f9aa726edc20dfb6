package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike 转义 LIKE 模式中的通配符
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// rowExists 用于 UPDATE 影响 0 行之后区分记录不存在和值未变化
// MySQL 默认只把实际被修改的行计入 RowsAffected
func rowExists(ctx context.Context, db *gorm.DB, model any, id uint64) (bool, error) {
	var n int64
	if err := conn(ctx, db).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
