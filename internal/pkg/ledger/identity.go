package ledger

import (
	"strings"

	"github.com/simplify-ai/simplify/app/models"
)

// LinkEmail upgrades an account in place after its email ownership was
// verified. The identity-verification mechanics live elsewhere; only the
// verified result arrives here.
func (s *Service) LinkEmail(accountID uint, email string) (*models.Account, error) {
	account, err := s.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	normalized := strings.ToLower(strings.TrimSpace(email))
	account.Email = &normalized
	if account.Channel == models.CHANNEL_ANONYMOUS {
		account.Channel = models.CHANNEL_EMAIL
	}
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// LinkGoogle attaches a verified Google identity to an account.
func (s *Service) LinkGoogle(accountID uint, sub, email, name string) (*models.Account, error) {
	account, err := s.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	account.GoogleSub = &sub
	account.Channel = models.CHANNEL_OAUTH
	if email != "" && account.Email == nil {
		normalized := strings.ToLower(strings.TrimSpace(email))
		account.Email = &normalized
	}
	if name != "" && account.Name == "" {
		account.Name = name
	}
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}
