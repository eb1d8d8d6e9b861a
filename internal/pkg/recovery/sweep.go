package recovery

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/mail"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/webhooks"
	"gorm.io/gorm"
)

const (
	skipReasonEmailMissing = "email-missing"
)

// Summary aggregates one sweep's per-candidate outcomes.
type Summary struct {
	Scanned   int `json:"scanned"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Converted int `json:"converted"`
	Failed    int `json:"failed"`
}

// Sweeper finds abandoned checkout sessions and nudges their owners on a
// bounded backoff schedule. Candidates are processed sequentially, oldest
// first; outbound mail and provider checks are rate-sensitive.
type Sweeper struct {
	db       *gorm.DB
	cfg      *config.Config
	provider payment.Provider
	mailer   mail.Mailer
	hooks    *webhooks.Service
}

func NewSweeper(db *gorm.DB, cfg *config.Config, provider payment.Provider, mailer mail.Mailer, hooks *webhooks.Service) *Sweeper {
	return &Sweeper{db: db, cfg: cfg, provider: provider, mailer: mailer, hooks: hooks}
}

// Run executes one sweep. force ignores the per-session next-attempt schedule
// (admin-triggered out-of-band runs); the age and max-attempt bounds always
// apply. Per-candidate failures are recorded and do not abort the batch.
func (s *Sweeper) Run(ctx context.Context, force bool, now time.Time) (Summary, error) {
	rec := s.cfg.Recovery
	cutoff := now.Add(-rec.InitialDelay)

	q := s.db.
		Where("status IN ?", []string{models.SessionStatusCreated, models.SessionStatusPending}).
		Where("recovery_attempts < ?", rec.MaxAttempts).
		Where("created_at <= ?", cutoff)
	if !force {
		q = q.Where("recovery_next_attempt IS NULL OR recovery_next_attempt <= ?", now)
	}

	var candidates []models.PaymentSession
	if err := q.Order("created_at ASC").Limit(rec.BatchSize).Find(&candidates).Error; err != nil {
		return Summary{}, err
	}

	summary := Summary{Scanned: len(candidates)}
	for i := range candidates {
		session := &candidates[i]
		outcome, err := s.processCandidate(ctx, session, now)
		if err != nil {
			log.Errorf("[Recovery] session %s: %v", session.ID, err)
			summary.Failed++
			continue
		}
		switch outcome {
		case models.AuditRecoverySent:
			summary.Sent++
		case models.AuditRecoverySkip:
			summary.Skipped++
		case models.AuditRecoveryConverted:
			summary.Converted++
		case models.AuditRecoveryFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Sweeper) processCandidate(ctx context.Context, session *models.PaymentSession, now time.Time) (string, error) {
	// Re-check provider truth first: a customer who paid while the webhook
	// raced the sweep must never be nagged.
	if cs, err := s.provider.GetCheckoutSession(ctx, session.ID); err == nil && cs.Paid() {
		if err := s.hooks.FinalizeCheckout(webhooks.CheckoutFromProvider(cs)); err != nil {
			return "", err
		}
		if err := s.recordOutcome(session, models.AuditRecoveryConverted, "", ""); err != nil {
			return "", err
		}
		return models.AuditRecoveryConverted, nil
	}

	var account models.Account
	if err := s.db.First(&account, session.AccountID).Error; err != nil {
		return "", err
	}

	if account.Email == nil || *account.Email == "" {
		// Still advance the schedule: a contactless session must not be
		// rescanned forever.
		s.advance(session, now)
		session.RecoveryLastError = skipReasonEmailMissing
		if err := s.save(session); err != nil {
			return "", err
		}
		if err := s.recordOutcome(session, models.AuditRecoverySkip, "", skipReasonEmailMissing); err != nil {
			return "", err
		}
		return models.AuditRecoverySkip, nil
	}

	variant := pickVariant(session.ID)
	subject, body := nudgeContent(variant, s.cfg.ResumeCheckoutURL(session.ID))

	// Persist the advanced schedule before the mail leaves: a crash after
	// delivery must not replay the same step on the next sweep. The cost is
	// an attempt recorded as spent if we crash before sending.
	s.advance(session, now)
	session.RecoveryLastVariant = variant
	if err := s.save(session); err != nil {
		return "", err
	}

	sendErr := s.mailer.Send(*account.Email, subject, body)

	outcome := models.AuditRecoverySent
	if sendErr != nil {
		// Delivery failed but attempts advance anyway: bounded retries.
		session.RecoveryLastError = sendErr.Error()
		outcome = models.AuditRecoveryFailed
	} else {
		session.RecoveryLastError = ""
		sentAt := now
		session.RecoveryEmailSentAt = &sentAt
	}
	if err := s.save(session); err != nil {
		return "", err
	}
	if err := s.recordOutcome(session, outcome, variant, session.RecoveryLastError); err != nil {
		return "", err
	}
	return outcome, nil
}

// advance moves the session one step along the backoff sequence.
func (s *Sweeper) advance(session *models.PaymentSession, now time.Time) {
	backoff := s.cfg.Recovery.BackoffHours
	session.RecoveryAttempts++
	session.RecoveryLastStep = session.RecoveryAttempts
	if session.RecoveryAttempts < len(backoff) {
		next := now.Add(time.Duration(backoff[session.RecoveryAttempts]) * time.Hour)
		session.RecoveryNextAttempt = &next
	} else {
		// Sequence exhausted; the max-attempts bound keeps it out of
		// future candidate queries.
		far := now.Add(time.Duration(backoff[len(backoff)-1]) * time.Hour)
		session.RecoveryNextAttempt = &far
	}
}

func (s *Sweeper) save(session *models.PaymentSession) error {
	return s.db.Save(session).Error
}

// recordOutcome writes the funnel fact: session, step, variant and a coarse
// account segment for later conversion-rate comparison.
func (s *Sweeper) recordOutcome(session *models.PaymentSession, name, variant, reason string) error {
	tier := "free"
	var ca models.CreditAccount
	if err := s.db.Where("account_id = ?", session.AccountID).First(&ca).Error; err == nil {
		tier = ca.PlanTier
	}

	channel := session.AcquisitionChannel
	if channel != models.AcquisitionPaid {
		channel = models.AcquisitionOrganic
	}

	payload := map[string]interface{}{
		"step":    session.RecoveryLastStep,
		"variant": variant,
		"segment": map[string]string{
			"plan_tier": tier,
			"channel":   channel,
		},
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return ledger.RecordAudit(s.db, name, &session.AccountID, session.ID, payload)
}

// pickVariant deterministically assigns one of the two content treatments so
// a session always sees the same copy across repeated nudges.
func pickVariant(sessionID string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	if h.Sum32()%2 == 0 {
		return models.RecoveryVariantA
	}
	return models.RecoveryVariantB
}

func nudgeContent(variant, resumeURL string) (string, string) {
	if variant == models.RecoveryVariantA {
		return "Your credits are waiting",
			fmt.Sprintf("<p>You were one step away from your Simplify credits.</p><p><a href=\"%s\">Finish your purchase</a></p>", resumeURL)
	}
	return "Still want to simplify that text?",
		fmt.Sprintf("<p>Your checkout is still open. Pick up where you left off:</p><p><a href=\"%s\">Complete checkout</a></p>", resumeURL)
}
