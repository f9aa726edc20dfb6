package models

import "time"

type AccessAction string

const (
	ActionUpload     AccessAction = "UPLOAD"
	ActionNewVersion AccessAction = "NEW_VERSION"
	ActionView       AccessAction = "VIEW"
	ActionDownload   AccessAction = "DOWNLOAD"
	ActionDelete     AccessAction = "DELETE"
	ActionExport     AccessAction = "EXPORT"
)

// FileAccessHistory 对应 file_access_history 表，文件访问审计记录
type FileAccessHistory struct {
	ID             uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID         uint64       `gorm:"not null;index" json:"file_id"`
	UserID         uint64       `gorm:"not null;index" json:"user_id"`
	Action         AccessAction `gorm:"type:varchar(16);not null" json:"action"`
	ActionAt       time.Time    `gorm:"not null" json:"action_at"`
	IPAddress      string       `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	DeviceInfo     string       `gorm:"type:varchar(255)" json:"device_info,omitempty"`
	AdditionalInfo string       `gorm:"type:varchar(1024)" json:"additional_info,omitempty"`
}

func (FileAccessHistory) TableName() string {
	return "file_access_history"
}
