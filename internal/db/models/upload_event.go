package models

import (
	"time"

	"gorm.io/datatypes"
)

// UploadStatus 上传事件状态
type UploadStatus string

const (
	UploadStatusUnknown           UploadStatus = "UNKNOWN"
	UploadStatusPending           UploadStatus = "PENDING"    // 已创建，等待鉴权
	UploadStatusValidating        UploadStatus = "VALIDATING" // 鉴权通过，校验元数据
	UploadStatusProcessing        UploadStatus = "PROCESSING" // 已交给处理函数
	UploadStatusSuccess           UploadStatus = "SUCCESS"
	UploadStatusServerError       UploadStatus = "SERVER_ERROR"
	UploadStatusParsingError      UploadStatus = "PARSING_ERROR"
	UploadStatusUnsupported       UploadStatus = "UNSUPPORTED"
	UploadStatusUnsupportedClient UploadStatus = "UNSUPPORTED_CLIENT"
	UploadStatusValidationError   UploadStatus = "VALIDATION_ERROR"
)

// InFlightStatuses 仍在处理中的状态
var InFlightStatuses = []UploadStatus{
	UploadStatusPending,
	UploadStatusValidating,
	UploadStatusProcessing,
}

// InFlight 是否仍在处理中
func (s UploadStatus) InFlight() bool {
	for _, st := range InFlightStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Acceptable 金丝雀发布时视为正常的终态
func (s UploadStatus) Acceptable() bool {
	switch s {
	case UploadStatusSuccess, UploadStatusUnsupported, UploadStatusUnsupportedClient:
		return true
	}
	return false
}

// UploadEvent 一次上传的处理记录，shortid 唯一
type UploadEvent struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	ShortID       string         `gorm:"column:shortid;size:22;uniqueIndex;not null" json:"shortid"`
	Status        UploadStatus   `gorm:"size:32;index;not null;default:UNKNOWN" json:"status"`
	AuthTokenKey  string         `gorm:"size:64;index" json:"auth_token,omitempty"`
	APIKeyID      *uint          `json:"api_key_id,omitempty"`
	UploadIP      string         `gorm:"size:64" json:"upload_ip"`
	UserAgent     string         `gorm:"size:255" json:"user_agent"`
	Canary        bool           `gorm:"index;not null;default:false" json:"canary"`
	Tainted       bool           `gorm:"not null;default:false" json:"tainted"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	LogBucket     string         `gorm:"size:100" json:"log_bucket"`
	LogKey        string         `gorm:"size:255" json:"log_key"`
	DescriptorKey string         `gorm:"size:255" json:"descriptor_key"`
	Error         string         `gorm:"type:text" json:"error,omitempty"`
	Traceback     string         `gorm:"type:text" json:"traceback,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (UploadEvent) TableName() string {
	return "upload_events"
}

// SetStatus 切换状态并记录错误信息
func (e *UploadEvent) SetStatus(status UploadStatus, errMsg string) {
	e.Status = status
	e.Error = errMsg
	if errMsg == "" {
		e.Traceback = ""
	}
}
