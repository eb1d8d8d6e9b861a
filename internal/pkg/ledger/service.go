package ledger

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the account record and its credit ledger. Every balance change
// goes through a row-locking transaction here; no other package writes these
// tables directly.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

// EnsureAccount returns the account for a customer id, creating it (and its
// credit row) on first contact. Idempotent.
func (s *Service) EnsureAccount(customerID string) (*models.Account, error) {
	id := models.NormalizeCustomerID(customerID)
	if id == "" {
		return nil, ErrInvalidCustomerID
	}

	var account models.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(models.Account{CustomerID: id}).
			Attrs(models.Account{Role: models.ROLE_USER, Channel: models.CHANNEL_ANONYMOUS}).
			FirstOrCreate(&account).Error; err != nil {
			return err
		}
		return ensureCreditAccount(tx, account.ID, s.cfg.FreeUses)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func ensureCreditAccount(tx *gorm.DB, accountID uint, freeUses int64) error {
	var ca models.CreditAccount
	return tx.Where(models.CreditAccount{AccountID: accountID}).
		Attrs(models.CreditAccount{FreeUses: freeUses, PlanTier: "free"}).
		FirstOrCreate(&ca).Error
}

func (s *Service) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) GetByCustomerID(customerID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("customer_id = ?", models.NormalizeCustomerID(customerID)).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) GetByEmail(email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("email = ?", email).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) GetByGoogleSub(sub string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("google_sub = ?", sub).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByStripeCustomer resolves the local account owning a provider customer
// reference, used when webhook payloads carry nothing else.
func (s *Service) GetByStripeCustomer(stripeCustomerID string) (*models.Account, error) {
	return s.getByCreditField("stripe_customer_id", stripeCustomerID)
}

func (s *Service) GetByStripeSubscription(stripeSubscriptionID string) (*models.Account, error) {
	return s.getByCreditField("stripe_subscription_id", stripeSubscriptionID)
}

func (s *Service) getByCreditField(column, value string) (*models.Account, error) {
	if value == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var ca models.CreditAccount
	if err := s.db.Where(column+" = ?", value).First(&ca).Error; err != nil {
		return nil, err
	}
	return s.GetByID(ca.AccountID)
}

// Credits returns the current ledger row for an account.
func (s *Service) Credits(accountID uint) (*models.CreditAccount, error) {
	var ca models.CreditAccount
	if err := s.db.Where("account_id = ?", accountID).First(&ca).Error; err != nil {
		return nil, err
	}
	return &ca, nil
}

// LockCredits loads the credit row FOR UPDATE inside tx so concurrent
// mutations on the same account serialize. sqlite (tests) serializes writes
// on its own and does not accept the locking clause.
func LockCredits(tx *gorm.DB, accountID uint) (*models.CreditAccount, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ca models.CreditAccount
	if err := q.Where("account_id = ?", accountID).First(&ca).Error; err != nil {
		return nil, err
	}
	return &ca, nil
}

// GrantCreditsTx adds purchased credits under the caller's transaction and
// writes the paired audit event. The caller is responsible for its own
// idempotency guard (granted flag, invoice dedup).
func GrantCreditsTx(tx *gorm.DB, accountID uint, amount int64, sessionID string) error {
	if amount <= 0 {
		return errors.New("grant amount must be positive")
	}
	ca, err := LockCredits(tx, accountID)
	if err != nil {
		return err
	}
	ca.Credits += amount
	ca.TotalPurchased += amount
	if err := tx.Save(ca).Error; err != nil {
		return err
	}
	return RecordAudit(tx, models.AuditCreditGrant, &accountID, sessionID, map[string]interface{}{
		"delta":   amount,
		"credits": ca.Credits,
	})
}

// Grant credits outside a webhook context (administrative repair).
func (s *Service) Grant(accountID uint, amount int64, sessionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return GrantCreditsTx(tx, accountID, amount, sessionID)
	})
}

// RecordAudit appends one event-fact row. Runs in the caller's transaction so
// the fact and the mutation it describes commit or roll back together.
func RecordAudit(tx *gorm.DB, name string, accountID *uint, sessionID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	event := models.AuditEvent{
		EventID:   uuid.NewString(),
		Name:      name,
		AccountID: accountID,
		SessionID: sessionID,
		Payload:   string(raw),
	}
	return tx.Create(&event).Error
}

// DB exposes the underlying handle for components that compose transactions
// across packages (webhook ingestion, recovery).
func (s *Service) DB() *gorm.DB {
	return s.db
}

// Config returns the injected application configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}
