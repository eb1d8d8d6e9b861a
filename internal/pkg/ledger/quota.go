package ledger

import (
	"github.com/gofiber/fiber/v2/log"
	"github.com/simplify-ai/simplify/app/models"
	"gorm.io/gorm"
)

// Source reports which pool paid for a consumed unit.
type Source string

const (
	SourceFree   Source = "free"
	SourceCredit Source = "credit"
)

// Consume charges one generation to the account: free allowance first, then
// purchased credits. Callers must invoke Consume before the costly downstream
// work and Rollback if that work fails.
func (s *Service) Consume(accountID uint) (Source, error) {
	var source Source
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ca, err := LockCredits(tx, accountID)
		if err != nil {
			return err
		}

		switch {
		case ca.FreeUsed < ca.FreeUses:
			ca.FreeUsed++
			source = SourceFree
		case ca.Credits > 0:
			ca.Credits--
			ca.TotalConsumed++
			source = SourceCredit
		default:
			return ErrInsufficientCredits
		}

		if err := tx.Save(ca).Error; err != nil {
			return err
		}

		name := models.AuditFreeConsume
		if source == SourceCredit {
			name = models.AuditCreditConsume
		}
		return RecordAudit(tx, name, &accountID, "", map[string]interface{}{
			"credits":   ca.Credits,
			"free_used": ca.FreeUsed,
		})
	})
	if err != nil {
		return "", err
	}
	return source, nil
}

// Rollback reverses exactly one unit of whichever pool Consume charged. The
// guards make a repeated rollback a no-op rather than a double refund.
func (s *Service) Rollback(accountID uint, source Source) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		ca, err := LockCredits(tx, accountID)
		if err != nil {
			return err
		}

		name := models.AuditFreeRefund
		switch source {
		case SourceFree:
			if ca.FreeUsed == 0 {
				return nil
			}
			ca.FreeUsed--
		case SourceCredit:
			if ca.TotalConsumed == 0 {
				return nil
			}
			ca.Credits++
			ca.TotalConsumed--
			name = models.AuditCreditRefund
		default:
			return nil
		}

		if err := tx.Save(ca).Error; err != nil {
			return err
		}
		return RecordAudit(tx, name, &accountID, "", map[string]interface{}{
			"credits":   ca.Credits,
			"free_used": ca.FreeUsed,
		})
	})
}

// RollbackQuietly is the best-effort variant used on the generate path: a
// failed rollback is logged, not surfaced, so the original provider error
// stays visible to the caller.
func (s *Service) RollbackQuietly(accountID uint, source Source) {
	if err := s.Rollback(accountID, source); err != nil {
		log.Errorf("[Ledger] rollback failed for account %d (%s): %v", accountID, source, err)
	}
}
