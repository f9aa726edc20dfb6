package models

import (
	"fmt"
	"time"
)

type ResourceKind string

const (
	ResourceFolder ResourceKind = "FOLDER"
	ResourceFile   ResourceKind = "FILE"
)

// ResourceRef 资源引用：类型 + ID
type ResourceRef struct {
	Kind ResourceKind `json:"kind"`
	ID   uint64       `json:"id"`
}

func FolderRef(id uint64) ResourceRef { return ResourceRef{Kind: ResourceFolder, ID: id} }
func FileRef(id uint64) ResourceRef   { return ResourceRef{Kind: ResourceFile, ID: id} }

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

type Capability string

const (
	CapRead     Capability = "read"
	CapWrite    Capability = "write"
	CapDelete   Capability = "delete"
	CapDownload Capability = "download"
)

var AllCapabilities = []Capability{CapRead, CapWrite, CapDelete, CapDownload}

func ParseCapability(s string) (Capability, bool) {
	for _, c := range AllCapabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Capabilities 四个相互独立的权限位
type Capabilities struct {
	Read     bool `json:"read"`
	Write    bool `json:"write"`
	Delete   bool `json:"delete"`
	Download bool `json:"download"`
}

func FullCapabilities() Capabilities {
	return Capabilities{Read: true, Write: true, Delete: true, Download: true}
}

func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapRead:
		return c.Read
	case CapWrite:
		return c.Write
	case CapDelete:
		return c.Delete
	case CapDownload:
		return c.Download
	}
	return false
}

// Grant 对应 grants 表
// 同一 (资源, 主体) 只保留一行，撤销时置 active=false，再次授权时复用该行
type Grant struct {
	ID           uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ResourceKind ResourceKind `gorm:"type:varchar(16);not null;uniqueIndex:uk_grant_resource_subject" json:"resource_kind"`
	ResourceID   uint64       `gorm:"not null;uniqueIndex:uk_grant_resource_subject" json:"resource_id"`
	SubjectID    uint64       `gorm:"not null;uniqueIndex:uk_grant_resource_subject;index" json:"subject_id"`
	CanRead      bool         `gorm:"not null;default:false" json:"can_read"`
	CanWrite     bool         `gorm:"not null;default:false" json:"can_write"`
	CanDelete    bool         `gorm:"not null;default:false" json:"can_delete"`
	CanDownload  bool         `gorm:"not null;default:false" json:"can_download"`
	GrantedBy    uint64       `gorm:"not null" json:"granted_by"`
	GrantedAt    time.Time    `gorm:"not null" json:"granted_at"`
	ValidFrom    time.Time    `gorm:"not null" json:"valid_from"`
	ValidUntil   *time.Time   `json:"valid_until,omitempty"`
	Active       bool         `gorm:"not null;default:true;index" json:"active"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Grant) TableName() string {
	return "grants"
}

func (g *Grant) Resource() ResourceRef {
	return ResourceRef{Kind: g.ResourceKind, ID: g.ResourceID}
}

func (g *Grant) Capabilities() Capabilities {
	return Capabilities{Read: g.CanRead, Write: g.CanWrite, Delete: g.CanDelete, Download: g.CanDownload}
}

func (g *Grant) SetCapabilities(c Capabilities) {
	g.CanRead = c.Read
	g.CanWrite = c.Write
	g.CanDelete = c.Delete
	g.CanDownload = c.Download
}

// EffectiveAt 授权在 now 时刻是否生效：active 且处于 [ValidFrom, ValidUntil) 区间
func (g *Grant) EffectiveAt(now time.Time) bool {
	if !g.Active {
		return false
	}
	if now.Before(g.ValidFrom) {
		return false
	}
	if g.ValidUntil != nil && !now.Before(*g.ValidUntil) {
		return false
	}
	return true
}
