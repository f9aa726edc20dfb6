package models

import "time"

// FileVersion 对应 file_versions 表，文件历史版本的不可变快照，只追加
type FileVersion struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID        uint64    `gorm:"not null;uniqueIndex:uk_file_version" json:"file_id"`
	VersionNumber int       `gorm:"not null;uniqueIndex:uk_file_version" json:"version_number"`
	Size          int64     `gorm:"not null" json:"size"`
	ContentType   string    `gorm:"type:varchar(128);not null" json:"content_type"`
	StorageKey    string    `gorm:"type:varchar(1024);not null" json:"-"`
	CreatedBy     uint64    `gorm:"not null" json:"created_by"`
	ChangeComment string    `gorm:"type:varchar(512)" json:"change_comment,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FileVersion) TableName() string {
	return "file_versions"
}
