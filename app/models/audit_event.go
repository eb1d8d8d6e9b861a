package models

import "time"

// Audit event names written by the billing core. Every ledger mutation and
// every recovery outcome produces exactly one of these rows in the same
// transaction as the mutation itself.
const (
	AuditCreditGrant       = "credit-grant"
	AuditCreditConsume     = "credit-consume"
	AuditCreditRefund      = "credit-refund"
	AuditFreeConsume       = "free-consume"
	AuditFreeRefund        = "free-refund"
	AuditAccountMerge      = "account-merge"
	AuditMergeSubConflict  = "merge-subscription-conflict"
	AuditRecoverySent      = "recovery-sent"
	AuditRecoverySkip      = "recovery-skip"
	AuditRecoveryFailed    = "recovery-failed"
	AuditRecoveryConverted = "recovery-converted"
	AuditWebhookDuplicate  = "webhook-duplicate"
)

// AuditEvent is the append-only event-fact log. Rows are never updated or
// deleted; funnel and revenue reports read them directly.
type AuditEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"type:varchar(40);uniqueIndex;not null" json:"event_id"`
	Name      string    `gorm:"type:varchar(64);not null;index" json:"name"`
	AccountID *uint     `gorm:"index" json:"account_id,omitempty"`
	SessionID string    `gorm:"type:varchar(191);index" json:"session_id,omitempty"`
	Payload   string    `gorm:"type:longtext" json:"payload"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
