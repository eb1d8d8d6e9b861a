package reconcile

import (
	"context"
	"errors"

	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/webhooks"
	"gorm.io/gorm"
)

// ErrSessionNotFound is returned when no local session row exists for the id.
var ErrSessionNotFound = errors.New("payment session not found")

// Result is one session's outcome from a batch run.
type Result struct {
	SessionID  string `json:"session_id"`
	Reconciled bool   `json:"reconciled"`
	Error      string `json:"error,omitempty"`
}

// Service polls the payment provider for the truth about sessions whose local
// state is stale or uncertain and applies the shared completion path when the
// provider reports payment.
type Service struct {
	db       *gorm.DB
	provider payment.Provider
	hooks    *webhooks.Service
}

func NewService(db *gorm.DB, provider payment.Provider, hooks *webhooks.Service) *Service {
	return &Service{db: db, provider: provider, hooks: hooks}
}

// ReconcileOne checks a single session against the provider. Returns true
// when the session was finalized by this call.
func (s *Service) ReconcileOne(ctx context.Context, sessionID string) (bool, error) {
	var session models.PaymentSession
	if err := s.db.Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}
	if !session.IsOpen() {
		return false, nil
	}

	cs, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !cs.Paid() {
		return false, nil
	}

	if err := s.hooks.FinalizeCheckout(webhooks.CheckoutFromProvider(cs)); err != nil {
		return false, err
	}
	return true, nil
}

// ReconcileBatch walks up to limit open sessions, oldest first. Per-session
// failures are captured in the result, not raised; one broken session must
// not block repairing the rest.
func (s *Service) ReconcileBatch(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}

	var sessions []models.PaymentSession
	if err := s.db.
		Where("status IN ?", []string{models.SessionStatusCreated, models.SessionStatusPending}).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(sessions))
	for _, session := range sessions {
		reconciled, err := s.ReconcileOne(ctx, session.ID)
		r := Result{SessionID: session.ID, Reconciled: reconciled}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results, nil
}
