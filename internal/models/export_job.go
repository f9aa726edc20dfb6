package models

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ExportJob 对应 export_jobs 表，批量导出（打包下载）任务
// 状态只通过条件更新迁移，终态只会写入一次
type ExportJob struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID       uint64     `gorm:"not null;index" json:"requester_id"`
	RootFolderID      uint64     `gorm:"not null" json:"root_folder_id"`
	Status            JobStatus  `gorm:"type:varchar(16);not null;index" json:"status"`
	IncludeSubfolders bool       `gorm:"not null;default:true" json:"include_subfolders"`
	TotalFiles        int        `gorm:"not null;default:0" json:"total_files"`
	// ProcessedFiles 成功写入压缩包的文件数，不超过 TotalFiles
	ProcessedFiles    int        `gorm:"not null;default:0" json:"processed_files"`
	// FailedFiles 读取失败被跳过的文件数
	FailedFiles       int        `gorm:"not null;default:0" json:"failed_files"`
	ArchiveSize       int64      `gorm:"not null;default:0" json:"archive_size"`
	ArchiveKey        string     `gorm:"type:varchar(255)" json:"-"`
	DownloadURL       string     `gorm:"type:text" json:"download_url,omitempty"`
	ErrorMessage      string     `gorm:"type:text" json:"error_message,omitempty"`
	CancelRequested   bool       `gorm:"not null;default:false" json:"cancel_requested"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ExpirationTime    time.Time  `json:"expiration_time"`
}

func (ExportJob) TableName() string {
	return "export_jobs"
}
