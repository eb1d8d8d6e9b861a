package ledger

import (
	"errors"

	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
	"gorm.io/gorm"
)

// Merge folds the source account into the target when a verified login shows
// both belong to the same human. Runs in a single transaction: ledger fields
// are combined, payment sessions and audit events re-pointed, and the source
// deleted, or none of it happens.
func (s *Service) Merge(sourceID, targetID uint) error {
	if sourceID == targetID {
		return errors.New("cannot merge an account into itself")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Lock in id order so two concurrent merges cannot deadlock.
		first, second := sourceID, targetID
		if first > second {
			first, second = second, first
		}
		if _, err := LockCredits(tx, first); err != nil {
			return err
		}
		if _, err := LockCredits(tx, second); err != nil {
			return err
		}

		var src, dst models.CreditAccount
		if err := tx.Where("account_id = ?", sourceID).First(&src).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", targetID).First(&dst).Error; err != nil {
			return err
		}

		subConflict := src.StripeSubscriptionID != "" && dst.StripeSubscriptionID != "" &&
			src.StripeSubscriptionID != dst.StripeSubscriptionID

		dst.Credits += src.Credits
		dst.TotalPurchased += src.TotalPurchased
		dst.TotalConsumed += src.TotalConsumed
		if src.FreeUsed < dst.FreeUsed {
			dst.FreeUsed = src.FreeUsed
		}
		if src.FreeUses > dst.FreeUses {
			dst.FreeUses = src.FreeUses
		}
		dst.SubscriptionActive = dst.SubscriptionActive || src.SubscriptionActive

		tier := plans.Max(plans.Normalize(dst.PlanTier), plans.Normalize(src.PlanTier))
		if dst.SubscriptionActive {
			tier = plans.TierSub
		}
		dst.PlanTier = string(tier)

		if dst.SubscriptionCreditsPerCycle == 0 {
			dst.SubscriptionCreditsPerCycle = src.SubscriptionCreditsPerCycle
		}
		// Target wins ties on provider references.
		if dst.StripeCustomerID == "" {
			dst.StripeCustomerID = src.StripeCustomerID
		}
		if dst.StripeSubscriptionID == "" {
			dst.StripeSubscriptionID = src.StripeSubscriptionID
		}

		if err := tx.Save(&dst).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.PaymentSession{}).
			Where("account_id = ?", sourceID).
			Update("account_id", targetID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.AuditEvent{}).
			Where("account_id = ?", sourceID).
			Update("account_id", targetID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ProcessedInvoice{}).
			Where("account_id = ?", sourceID).
			Update("account_id", targetID).Error; err != nil {
			return err
		}

		if err := tx.Delete(&models.CreditAccount{}, src.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Account{}, sourceID).Error; err != nil {
			return err
		}

		if subConflict {
			// The source's subscription stays live at the provider with no
			// local owner; flag it for manual follow-up.
			if err := RecordAudit(tx, models.AuditMergeSubConflict, &targetID, "", map[string]interface{}{
				"orphaned_subscription": src.StripeSubscriptionID,
				"kept_subscription":     dst.StripeSubscriptionID,
				"source_account":        sourceID,
			}); err != nil {
				return err
			}
		}

		return RecordAudit(tx, models.AuditAccountMerge, &targetID, "", map[string]interface{}{
			"source_account":  sourceID,
			"credits":         dst.Credits,
			"plan_tier":       dst.PlanTier,
			"free_used":       dst.FreeUsed,
			"free_uses":       dst.FreeUses,
			"total_purchased": dst.TotalPurchased,
		})
	})
}
