package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"

	CHANNEL_ANONYMOUS = "anonymous"
	CHANNEL_EMAIL     = "email"
	CHANNEL_OAUTH     = "oauth"
)

// Account is a billable identity. It is created lazily on first interaction
// (anonymous) and upgraded in place when a login channel is verified. The
// CustomerID is the only identifier ever exposed to the browser.
type Account struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CustomerID string    `gorm:"type:varchar(96);uniqueIndex;not null" json:"customer_id" validate:"required,min=3,max=96"`
	Email      *string   `gorm:"type:varchar(200);uniqueIndex" json:"email,omitempty" validate:"omitempty,email"`
	GoogleSub  *string   `gorm:"type:varchar(191);uniqueIndex" json:"-"`
	Name       string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Role       string    `gorm:"type:varchar(20);default:'user'" json:"role" validate:"oneof=user admin"`
	Channel    string    `gorm:"type:varchar(20);default:'anonymous'" json:"channel" validate:"oneof=anonymous email oauth"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// IsAdmin reports whether the account has the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == ROLE_ADMIN
}

// NormalizeCustomerID reduces a client-supplied customer identifier to the
// canonical lowercase [a-z0-9_-] form, capped at 96 characters. An empty
// result means the input was unusable.
func NormalizeCustomerID(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 96 {
		out = out[:96]
	}
	return out
}
