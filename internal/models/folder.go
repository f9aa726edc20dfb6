package models

import "time"

// Folder 对应 folders 表
// ParentID 为 nil 表示空间根目录，Path 为物化路径，例如 "/A/B"
type Folder struct {
	ID         uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	SpaceID    uint64            `gorm:"not null;index:idx_space_parent_name" json:"space_id"`
	ParentID   *uint64           `gorm:"default:null;index:idx_space_parent_name" json:"parent_id"`
	Name       string            `gorm:"type:varchar(255);not null;index:idx_space_parent_name" json:"name"`
	Path       string            `gorm:"type:varchar(1024);not null;default:''" json:"path"`
	IsActive   bool              `gorm:"not null;default:true" json:"is_active"`
	Attributes map[string]string `gorm:"type:json;serializer:json" json:"attributes,omitempty"`
	CreatedBy  uint64            `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Folder) TableName() string {
	return "folders"
}

// ChildPath 拼接子目录的物化路径
func ChildPath(parentPath, name string) string {
	return parentPath + "/" + name
}
