package webhooks

import (
	"errors"
	"strconv"
	"time"

	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service ingests provider billing events. Dedup insert and handler run in
// one transaction: a crash between them cannot silently drop state, and a
// handler error leaves the event unrecorded so provider redelivery retries it.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

// Process applies one inbound event. Transport-level authenticity is the
// caller's concern; the signatureValid flag is only recorded.
func (s *Service) Process(event *Event, raw []byte, signatureValid bool) (Outcome, error) {
	outcome := OutcomeProcessed
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record := models.WebhookEvent{
			ProviderEventID: event.ID,
			EventType:       event.Type,
			PayloadJSON:     string(raw),
			SignatureValid:  signatureValid,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = OutcomeDeduplicated
			return ledger.RecordAudit(tx, models.AuditWebhookDuplicate, nil, "", map[string]interface{}{
				"provider_event_id": event.ID,
				"event_type":        event.Type,
			})
		}

		switch event.Type {
		case EventCheckoutCompleted:
			payload, err := event.checkoutSession()
			if err != nil {
				return err
			}
			if err := s.completeCheckoutTx(tx, checkoutFromPayload(payload)); err != nil {
				return err
			}
		case EventInvoicePaid:
			payload, err := event.invoice()
			if err != nil {
				return err
			}
			if err := s.handleInvoicePaid(tx, payload); err != nil {
				return err
			}
		case EventSubscriptionUpdated:
			payload, err := event.subscription()
			if err != nil {
				return err
			}
			if err := s.handleSubscriptionState(tx, payload, plans.IsEntitlingStatus(payload.Status)); err != nil {
				return err
			}
		case EventSubscriptionDeleted:
			payload, err := event.subscription()
			if err != nil {
				return err
			}
			if err := s.handleSubscriptionState(tx, payload, false); err != nil {
				return err
			}
		default:
			outcome = OutcomeIgnored
		}

		now := time.Now()
		return tx.Model(&models.WebhookEvent{}).
			Where("id = ?", record.ID).
			Update("processed_at", &now).Error
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// CompletedCheckout is the provider-confirmed truth about one paid session,
// fed to the single completion path by webhook, reconciliation and recovery.
type CompletedCheckout struct {
	SessionID          string
	PlanID             string
	CustomerRef        string
	ClientReferenceID  string
	StripeCustomer     string
	StripeSubscription string
	CreditsOverride    *int64
	AmountTotal        int64
	Currency           string
}

func checkoutFromPayload(p *CheckoutSessionPayload) CompletedCheckout {
	in := CompletedCheckout{
		SessionID:          p.ID,
		PlanID:             p.Metadata["plan"],
		CustomerRef:        p.Metadata["customer_id"],
		ClientReferenceID:  p.ClientReferenceID,
		StripeCustomer:     p.Customer,
		StripeSubscription: p.Subscription,
		AmountTotal:        p.AmountTotal,
		Currency:           p.Currency,
	}
	if raw, ok := p.Metadata["credits_granted"]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			in.CreditsOverride = &v
		}
	}
	return in
}

// FinalizeCheckout runs the completion path in its own transaction; the entry
// point for reconciliation and the recovery sweep.
func (s *Service) FinalizeCheckout(in CompletedCheckout) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.completeCheckoutTx(tx, in)
	})
}

// completeCheckoutTx is the only code path that marks a session completed and
// grants its credits. Idempotent: the session's granted flag guards the grant.
func (s *Service) completeCheckoutTx(tx *gorm.DB, in CompletedCheckout) error {
	account, err := s.resolveAccount(tx, in)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No local owner; nothing to mutate. The raw event is kept for
			// manual reconciliation.
			return nil
		}
		return err
	}

	tier := plans.Normalize(in.PlanID)
	credits := int64(0)
	if plan, ok := s.cfg.Plan(tier); ok {
		credits = plan.Credits
	}
	if in.CreditsOverride != nil {
		credits = *in.CreditsOverride
	}

	// The granted flag must be read under FOR UPDATE: webhook push, the
	// customer's status poll and the recovery re-check can all land here at
	// once, and only the first may see granted=false.
	session, err := lockSession(tx, in.SessionID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		session = &models.PaymentSession{
			ID:                 in.SessionID,
			AccountID:          account.ID,
			CustomerID:         account.CustomerID,
			AcquisitionChannel: models.AcquisitionOrganic,
		}
	case err != nil:
		return err
	}

	alreadyGranted := session.Granted
	session.AccountID = account.ID
	session.CustomerID = account.CustomerID
	if in.PlanID != "" {
		session.PlanID = string(tier)
	}
	session.CreditsGranted = credits
	session.AdvanceStatus(models.SessionStatusCompleted)
	if in.AmountTotal > 0 {
		session.AmountTotal = in.AmountTotal
	}
	if in.Currency != "" {
		session.Currency = in.Currency
	}
	if in.StripeCustomer != "" {
		session.StripeCustomerID = in.StripeCustomer
	}
	if in.StripeSubscription != "" {
		session.StripeSubscriptionID = in.StripeSubscription
	}

	ca, err := ledger.LockCredits(tx, account.ID)
	if err != nil {
		return err
	}
	if in.StripeCustomer != "" {
		ca.StripeCustomerID = in.StripeCustomer
	}
	if in.StripeSubscription != "" {
		ca.SubscriptionActive = true
		ca.StripeSubscriptionID = in.StripeSubscription
		if credits > 0 {
			ca.SubscriptionCreditsPerCycle = credits
		}
	}

	newTier := plans.Max(plans.Normalize(ca.PlanTier), tier)
	if in.StripeSubscription != "" {
		newTier = plans.TierSub
	}
	ca.PlanTier = string(newTier)

	grantNow := !alreadyGranted && credits > 0
	if grantNow {
		ca.Credits += credits
		ca.TotalPurchased += credits
		session.Granted = true
	} else if credits <= 0 {
		session.Granted = true
	}

	if err := tx.Save(ca).Error; err != nil {
		return err
	}
	if err := tx.Save(session).Error; err != nil {
		return err
	}

	if grantNow {
		return ledger.RecordAudit(tx, models.AuditCreditGrant, &account.ID, session.ID, map[string]interface{}{
			"delta":     credits,
			"credits":   ca.Credits,
			"plan_tier": ca.PlanTier,
		})
	}
	return nil
}

// lockSession fetches a payment session row with a row lock so concurrent
// completion paths serialize on it. sqlite has no row locks; tests run on a
// single connection, which serializes transactions anyway.
func lockSession(tx *gorm.DB, id string) (*models.PaymentSession, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var session models.PaymentSession
	if err := q.Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// resolveAccount finds the owning account: session metadata first, then the
// checkout client reference, then the provider customer reference.
func (s *Service) resolveAccount(tx *gorm.DB, in CompletedCheckout) (*models.Account, error) {
	for _, ref := range []string{in.CustomerRef, in.ClientReferenceID} {
		id := models.NormalizeCustomerID(ref)
		if id == "" {
			continue
		}
		var account models.Account
		err := tx.Where("customer_id = ?", id).First(&account).Error
		if err == nil {
			return &account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if in.StripeCustomer != "" {
		var ca models.CreditAccount
		err := tx.Where("stripe_customer_id = ?", in.StripeCustomer).First(&ca).Error
		if err == nil {
			var account models.Account
			if err := tx.First(&account, ca.AccountID).Error; err != nil {
				return nil, err
			}
			return &account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, gorm.ErrRecordNotFound
}

func (s *Service) handleInvoicePaid(tx *gorm.DB, invoice *InvoicePayload) error {
	dedup := models.ProcessedInvoice{InvoiceID: invoice.ID}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_id"}},
		DoNothing: true,
	}).Create(&dedup)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	var ca models.CreditAccount
	err := tx.Where("stripe_customer_id = ?", invoice.Customer).First(&ca).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Invoice for a customer we never linked; keep it marked processed.
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.Model(&models.ProcessedInvoice{}).
		Where("invoice_id = ?", invoice.ID).
		Update("account_id", ca.AccountID).Error; err != nil {
		return err
	}

	locked, err := ledger.LockCredits(tx, ca.AccountID)
	if err != nil {
		return err
	}
	locked.SubscriptionActive = true
	if invoice.Subscription != "" {
		locked.StripeSubscriptionID = invoice.Subscription
	}

	// Only a recurring cycle grants credits; the initial invoice was already
	// covered by the checkout completion grant.
	granted := int64(0)
	if invoice.BillingReason == "subscription_cycle" {
		granted = locked.SubscriptionCreditsPerCycle
		if granted <= 0 {
			if plan, ok := s.cfg.Plan(plans.TierSub); ok {
				granted = plan.Credits
			}
		}
		locked.Credits += granted
		locked.TotalPurchased += granted
	}

	if err := tx.Save(locked).Error; err != nil {
		return err
	}
	if granted > 0 {
		return ledger.RecordAudit(tx, models.AuditCreditGrant, &locked.AccountID, "", map[string]interface{}{
			"delta":   granted,
			"credits": locked.Credits,
			"invoice": invoice.ID,
		})
	}
	return nil
}

func (s *Service) handleSubscriptionState(tx *gorm.DB, sub *SubscriptionPayload, active bool) error {
	var ca models.CreditAccount
	err := tx.Where("stripe_subscription_id = ?", sub.ID).First(&ca).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	locked, err := ledger.LockCredits(tx, ca.AccountID)
	if err != nil {
		return err
	}
	locked.SubscriptionActive = active
	// Tier only auto-demotes from sub; purchased pack/one entitlements stay.
	if !active && plans.Normalize(locked.PlanTier) == plans.TierSub {
		locked.PlanTier = string(plans.TierFree)
	}
	return tx.Save(locked).Error
}
