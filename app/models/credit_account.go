package models

import "time"

// CreditAccount is the per-account ledger. There is exactly one row per
// Account and every mutation happens inside a row-locking transaction, so
// Credits can never observe a negative value.
type CreditAccount struct {
	ID                          uint      `gorm:"primaryKey" json:"id"`
	AccountID                   uint      `gorm:"uniqueIndex;not null" json:"account_id"`
	Credits                     int64     `gorm:"not null;default:0" json:"credits"`
	FreeUsed                    int64     `gorm:"not null;default:0" json:"free_used"`
	FreeUses                    int64     `gorm:"not null;default:0" json:"free_uses"`
	TotalPurchased              int64     `gorm:"not null;default:0" json:"total_purchased"`
	TotalConsumed               int64     `gorm:"not null;default:0" json:"total_consumed"`
	SubscriptionActive          bool      `gorm:"not null;default:false" json:"subscription_active"`
	SubscriptionCreditsPerCycle int64     `gorm:"not null;default:0" json:"subscription_credits_per_cycle"`
	PlanTier                    string    `gorm:"type:varchar(10);not null;default:'free'" json:"plan_tier"`
	StripeCustomerID            string    `gorm:"type:varchar(191);index" json:"-"`
	StripeSubscriptionID        string    `gorm:"type:varchar(191);index" json:"-"`
	CreatedAt                   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FreeRemaining returns how many free uses are left.
func (ca *CreditAccount) FreeRemaining() int64 {
	if ca.FreeUsed >= ca.FreeUses {
		return 0
	}
	return ca.FreeUses - ca.FreeUsed
}
