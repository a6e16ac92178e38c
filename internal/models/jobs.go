package models

import (
	"time"
)

// ReplyJobStatus tracks an automated reply through the outbox.
type ReplyJobStatus string

const (
	ReplyJobPending    ReplyJobStatus = "pending"
	ReplyJobProcessing ReplyJobStatus = "processing"
	ReplyJobGenerated  ReplyJobStatus = "generated"
	ReplyJobSent       ReplyJobStatus = "sent"
	ReplyJobSkipped    ReplyJobStatus = "skipped"
	ReplyJobFailed     ReplyJobStatus = "failed"
)

// ReplyJob is one queued automated reply. A job is created for every inbound client message
// that should get an AI answer, and is kept for inspection after it completes.
type ReplyJob struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	TenantID        int64          `gorm:"index;not null" json:"tenantId"`
	ConversationID  int64          `gorm:"index;not null" json:"conversationId"`
	ClientMessageID int64          `gorm:"not null" json:"clientMessageId"`
	ClientPhone     string         `gorm:"size:64;not null" json:"clientPhone"`
	ClientMessage   string         `gorm:"type:text" json:"clientMessage"`
	ReplyMessageID  *int64         `json:"replyMessageId,omitempty"`
	Reply           string         `gorm:"type:text" json:"reply,omitempty"`
	Status          ReplyJobStatus `gorm:"size:16;index" json:"status"`
	AttemptCount    int            `gorm:"default:0" json:"attemptCount"`
	LastError       string         `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Done reports whether the job reached a terminal state.
func (j *ReplyJob) Done() bool {
	switch j.Status {
	case ReplyJobSent, ReplyJobSkipped, ReplyJobFailed:
		return true
	}
	return false
}
