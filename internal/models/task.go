package models

// ExportTask 投递到任务队列的批量导出消息体
type ExportTask struct {
	JobID uint64 `json:"job_id"`
}
