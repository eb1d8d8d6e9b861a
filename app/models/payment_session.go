package models

import "time"

const (
	SessionStatusCreated   = "created"
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"

	RecoveryVariantA = "A"
	RecoveryVariantB = "B"

	AcquisitionPaid    = "paid"
	AcquisitionOrganic = "organic"
)

// PaymentSession is one attempted purchase, keyed by the provider's checkout
// session id. Status only ever moves forward (created -> pending -> completed)
// and Granted flips false -> true at most once, together with the credit grant.
type PaymentSession struct {
	ID                   string     `gorm:"type:varchar(191);primaryKey" json:"id"`
	AccountID            uint       `gorm:"index;not null" json:"account_id"`
	CustomerID           string     `gorm:"type:varchar(96);index" json:"customer_id"`
	PlanID               string     `gorm:"type:varchar(20)" json:"plan_id"`
	Status               string     `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	AmountTotal          int64      `gorm:"not null;default:0" json:"amount_total"`
	Currency             string     `gorm:"type:varchar(10)" json:"currency"`
	CreditsGranted       int64      `gorm:"not null;default:0" json:"credits_granted"`
	Granted              bool       `gorm:"not null;default:false" json:"granted"`
	StripeCustomerID     string     `gorm:"type:varchar(191);index" json:"-"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);index" json:"-"`
	AcquisitionChannel   string     `gorm:"type:varchar(20);default:'organic'" json:"acquisition_channel"`
	RecoveryAttempts     int        `gorm:"not null;default:0" json:"recovery_attempts"`
	RecoveryLastVariant  string     `gorm:"type:varchar(1)" json:"recovery_last_variant"`
	RecoveryLastStep     int        `gorm:"not null;default:0" json:"recovery_last_step"`
	RecoveryNextAttempt  *time.Time `gorm:"type:timestamp;default:null;index" json:"recovery_next_attempt,omitempty"`
	RecoveryLastError    string     `gorm:"type:text" json:"-"`
	RecoveryEmailSentAt  *time.Time `gorm:"type:timestamp;default:null" json:"recovery_email_sent_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOpen reports whether the session is still waiting for payment.
func (ps *PaymentSession) IsOpen() bool {
	return ps.Status == SessionStatusCreated || ps.Status == SessionStatusPending
}

// statusRank orders session states so updates can never regress.
func statusRank(status string) int {
	switch status {
	case SessionStatusCompleted:
		return 2
	case SessionStatusPending:
		return 1
	default:
		return 0
	}
}

// AdvanceStatus moves the session forward to the given status, ignoring
// updates that would move it backwards.
func (ps *PaymentSession) AdvanceStatus(status string) {
	if statusRank(status) > statusRank(ps.Status) {
		ps.Status = status
	}
}
