package models

import (
	"fmt"
	"time"
)

// TenantSpace 对应 tenant_spaces 表，一个租户在一个模块下的独立存储空间
type TenantSpace struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID        uint64    `gorm:"not null;uniqueIndex:uk_tenant_module" json:"tenant_id"`
	ModuleID        uint64    `gorm:"not null;uniqueIndex:uk_tenant_module" json:"module_id"`
	StoragePath     string    `gorm:"type:varchar(255);not null" json:"storage_path"`
	TotalQuotaBytes int64     `gorm:"not null;default:0" json:"total_quota_bytes"`
	UsedBytes       int64     `gorm:"not null;default:0" json:"used_bytes"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedBy       uint64    `gorm:"not null" json:"created_by"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TenantSpace) TableName() string {
	return "tenant_spaces"
}

// SpaceStoragePath 返回空间在对象存储中的前缀
func SpaceStoragePath(tenantID, moduleID uint64) string {
	return fmt.Sprintf("clients/%d/module_%d", tenantID, moduleID)
}

// AvailableBytes 剩余可用字节数，不会小于 0
func (s *TenantSpace) AvailableBytes() int64 {
	if s.UsedBytes >= s.TotalQuotaBytes {
		return 0
	}
	return s.TotalQuotaBytes - s.UsedBytes
}
