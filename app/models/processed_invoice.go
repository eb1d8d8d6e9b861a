package models

import "time"

// ProcessedInvoice is the dedup ledger for recurring-billing invoice events,
// keyed by the provider invoice id. Renewal credits are granted at most once
// per invoice regardless of how often the event is redelivered.
type ProcessedInvoice struct {
	InvoiceID string    `gorm:"type:varchar(191);primaryKey" json:"invoice_id"`
	AccountID uint      `gorm:"index" json:"account_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
