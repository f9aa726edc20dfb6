package models

import "time"

type FileStatus string

const (
	FileStatusActive  FileStatus = "ACTIVE"
	FileStatusDeleted FileStatus = "DELETED" // 软删除，对象存储中的内容保留
)

type ViewStatus string

const (
	ViewStatusNew           ViewStatus = "NEW"
	ViewStatusViewed        ViewStatus = "VIEWED"
	ViewStatusDownloaded    ViewStatus = "DOWNLOADED"
	ViewStatusNotDownloaded ViewStatus = "NOT_DOWNLOADED"
)

// Color 返回查看状态对应的展示颜色
func (s ViewStatus) Color() string {
	switch s {
	case ViewStatusViewed:
		return "YELLOW"
	case ViewStatusDownloaded:
		return "GREEN"
	case ViewStatusNotDownloaded:
		return "RED"
	default:
		return "BLUE"
	}
}

func (s ViewStatus) Valid() bool {
	switch s {
	case ViewStatusNew, ViewStatusViewed, ViewStatusDownloaded, ViewStatusNotDownloaded:
		return true
	}
	return false
}

// File 对应 files 表
type File struct {
	ID               uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	FolderID         uint64            `gorm:"not null;index:idx_folder_name" json:"folder_id"`
	Name             string            `gorm:"type:varchar(255);not null;index:idx_folder_name" json:"name"`
	Size             int64             `gorm:"not null;default:0" json:"size"`
	ContentType      string            `gorm:"type:varchar(128);not null;default:'application/octet-stream'" json:"content_type"`
	StorageKey       string            `gorm:"type:varchar(1024);not null" json:"-"`
	Status           FileStatus        `gorm:"type:varchar(16);not null;default:'ACTIVE';index" json:"status"`
	ViewStatus       ViewStatus        `gorm:"type:varchar(16);not null;default:'NEW'" json:"view_status"`
	ViewColor        string            `gorm:"type:varchar(16);not null;default:'BLUE'" json:"view_color"`
	Version          int               `gorm:"not null;default:1" json:"version"`
	Metadata         map[string]string `gorm:"type:json;serializer:json" json:"metadata,omitempty"`
	UploadedBy       uint64            `gorm:"not null" json:"uploaded_by"`
	LastViewedAt     *time.Time        `json:"last_viewed_at,omitempty"`
	LastDownloadedAt *time.Time        `json:"last_downloaded_at,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (File) TableName() string {
	return "files"
}

func (f *File) IsActive() bool {
	return f.Status == FileStatusActive
}

// SetViewStatus 同步更新颜色和对应的时间戳
func (f *File) SetViewStatus(status ViewStatus, now time.Time) {
	f.ViewStatus = status
	f.ViewColor = status.Color()
	switch status {
	case ViewStatusViewed:
		f.LastViewedAt = &now
	case ViewStatusDownloaded:
		f.LastDownloadedAt = &now
	}
}
