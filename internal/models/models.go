package models

import (
	"time"
)

// Sender roles stored on every message.
const (
	SenderClient    = "client"
	SenderConcierge = "concierge"
)

// TenantPublic is the redacted view of a conciergerie, safe to return to any dashboard.
type TenantPublic struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Email           string    `db:"email" json:"email"`
	WhatsAppNumber  string    `db:"whatsapp_number" json:"whatsappNumber"`
	SandboxJoinCode string    `db:"sandbox_join_code" json:"sandboxJoinCode"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// TenantWithCredentials carries the secret fields needed for login and outbound sends.
// None of the secrets are serialized.
type TenantWithCredentials struct {
	TenantPublic
	PasswordHash     string     `db:"password_hash" json:"-"`
	TwilioAccountSID string     `db:"twilio_account_sid" json:"-"`
	TwilioAuthToken  string     `db:"twilio_auth_token" json:"-"`
	ResetTokenHash   string     `db:"reset_token_hash" json:"-"`
	ResetTokenExpiry *time.Time `db:"reset_token_expires_at" json:"-"`
}

// MessagingConfigured reports whether the tenant has everything needed to send through the provider.
func (t TenantWithCredentials) MessagingConfigured() bool {
	return t.WhatsAppNumber != "" && t.TwilioAccountSID != "" && t.TwilioAuthToken != ""
}

// NewTenant holds the fields required to create a tenant.
type NewTenant struct {
	Name         string
	Email        string
	PasswordHash string
}

// TenantUpdate changes a tenant's identity. An empty PasswordHash keeps the current one.
type TenantUpdate struct {
	Name         string
	Email        string
	PasswordHash string
}

// MessagingCredentials are the provider settings of one tenant.
type MessagingCredentials struct {
	WhatsAppNumber string `json:"whatsappNumber"`
	AccountSID     string `json:"accountSid"`
	AuthToken      string `json:"authToken"`
}

// Conversation is the thread between one tenant and one client phone number.
type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	TenantID      int64     `db:"tenant_id" json:"tenantId"`
	Phone         string    `db:"phone_number" json:"phone"`
	AutoReply     bool      `db:"auto_reply" json:"autoReply"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	LastMessageAt time.Time `db:"last_message_at" json:"lastMessageAt"`
}

// ConversationSummary is a dashboard list row.
type ConversationSummary struct {
	Conversation
	TenantName  string `db:"tenant_name" json:"tenantName"`
	LastMessage string `db:"last_message" json:"lastMessage"`
}

// Message is one entry of a conversation's append-only log.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversationId"`
	Sender         string    `db:"sender" json:"sender"`
	Body           string    `db:"body" json:"body"`
	AISuggestion   *string   `db:"ai_suggestion" json:"aiSuggestion,omitempty"`
	IsAI           bool      `db:"is_ai" json:"isAi"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// NewMessage is the input of an append.
type NewMessage struct {
	ConversationID int64
	Sender         string
	Body           string
	AISuggestion   *string
	IsAI           bool
}

// PhoneRouting assigns a client phone number to a tenant and gates dashboard visibility.
type PhoneRouting struct {
	Phone      string    `db:"phone_number" json:"phone"`
	TenantID   int64     `db:"tenant_id" json:"tenantId"`
	TenantName string    `db:"tenant_name" json:"tenantName"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type FAQ struct {
	ID        int64     `db:"id" json:"id"`
	TenantID  int64     `db:"tenant_id" json:"tenantId"`
	Question  string    `db:"question" json:"question"`
	Answer    string    `db:"answer" json:"answer"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Template struct {
	ID        int64     `db:"id" json:"id"`
	TenantID  int64     `db:"tenant_id" json:"tenantId"`
	Name      string    `db:"name" json:"name"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Note struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversationId"`
	Body           string    `db:"note" json:"note"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Feature request workflow values.
const (
	FeatureStatusPending    = "pending"
	FeatureStatusInProgress = "in_progress"
	FeatureStatusCompleted  = "completed"
	FeatureStatusRejected   = "rejected"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type FeatureRequest struct {
	ID          int64     `db:"id" json:"id"`
	TenantID    *int64    `db:"tenant_id" json:"tenantId,omitempty"`
	TenantName  *string   `db:"tenant_name" json:"tenantName,omitempty"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	Priority    string    `db:"priority" json:"priority"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// ValidFeatureStatus reports whether s is one of the workflow states.
func ValidFeatureStatus(s string) bool {
	switch s {
	case FeatureStatusPending, FeatureStatusInProgress, FeatureStatusCompleted, FeatureStatusRejected:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Statistics aggregates message activity. AverageResponseTime is in whole seconds.
type Statistics struct {
	TotalConversations  int64 `json:"totalConversations"`
	TotalMessages       int64 `json:"totalMessages"`
	AIMessages          int64 `json:"aiMessages"`
	HumanMessages       int64 `json:"humanMessages"`
	AverageResponseTime int64 `json:"averageResponseTime"`
}

// Transcript is a conversation with its full message log, used for archives.
type Transcript struct {
	Conversation ConversationSummary `json:"conversation"`
	Messages     []Message           `json:"messages"`
}
