package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/simplify-ai/simplify/internal/pkg/env"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
)

// Plan describes one purchasable offer.
type Plan struct {
	ID            plans.Tier
	Label         string
	Mode          string
	Credits       int64
	AmountCents   int64
	StripePriceID string
}

// Recovery holds the checkout-recovery schedule knobs.
type Recovery struct {
	InitialDelay  time.Duration
	BackoffHours  []int
	MaxAttempts   int
	SweepInterval time.Duration
	BatchSize     int
}

// Stripe holds the payment provider credentials.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string
}

// OpenAI holds the text-transformation provider settings.
type OpenAI struct {
	APIKey string
	Model  string
}

// SMTP holds outbound mail settings.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// Config is the immutable application configuration, built once at startup
// and passed by reference into every component. Core packages never read
// environment variables directly.
type Config struct {
	AppBaseURL string
	Currency   string
	FreeUses   int64
	Plans      map[plans.Tier]Plan
	Recovery   Recovery
	Stripe     Stripe
	OpenAI     OpenAI
	SMTP       SMTP
}

// Load builds the configuration from the process environment.
func Load() *Config {
	subCredits := envInt64("CREDIT_SUB_MONTH", 250)

	cfg := &Config{
		AppBaseURL: strings.TrimRight(env.GetEnv("APP_BASE_URL", "http://localhost:4173"), "/"),
		Currency:   strings.ToLower(env.GetEnv("PRICE_CURRENCY", "eur")),
		FreeUses:   envInt64("FREE_USES", 3),
		Plans: map[plans.Tier]Plan{
			plans.TierOne: {
				ID:            plans.TierOne,
				Label:         "Single use",
				Mode:          plans.ModePayment,
				Credits:       envInt64("CREDIT_ONE", 1),
				AmountCents:   envInt64("PRICE_ONE_CENTS", 100),
				StripePriceID: env.GetEnv("STRIPE_PRICE_ONE", ""),
			},
			plans.TierPack: {
				ID:            plans.TierPack,
				Label:         "10 uses",
				Mode:          plans.ModePayment,
				Credits:       envInt64("CREDIT_PACK", 10),
				AmountCents:   envInt64("PRICE_PACK_CENTS", 500),
				StripePriceID: env.GetEnv("STRIPE_PRICE_PACK", ""),
			},
			plans.TierSub: {
				ID:            plans.TierSub,
				Label:         "Monthly subscription",
				Mode:          plans.ModeSubscription,
				Credits:       subCredits,
				AmountCents:   envInt64("PRICE_SUB_CENTS", 800),
				StripePriceID: env.GetEnv("STRIPE_PRICE_SUB", ""),
			},
		},
		Recovery: Recovery{
			InitialDelay:  time.Duration(envInt64("RECOVERY_DELAY_HOURS", 1)) * time.Hour,
			BackoffHours:  envIntList("RECOVERY_BACKOFF_HOURS", []int{1, 24, 72}),
			MaxAttempts:   int(envInt64("RECOVERY_MAX_ATTEMPTS", 3)),
			SweepInterval: time.Duration(envInt64("RECOVERY_SWEEP_MINUTES", 30)) * time.Minute,
			BatchSize:     int(envInt64("RECOVERY_BATCH_SIZE", 50)),
		},
		Stripe: Stripe{
			SecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			APIBaseURL:    env.GetEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
		},
		OpenAI: OpenAI{
			APIKey: env.GetEnv("OPENAI_API_KEY", ""),
			Model:  env.GetEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		},
		SMTP: SMTP{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			Sender:   env.GetEnv("SMTP_SENDER", "no-reply@localhost"),
		},
	}

	return cfg
}

// Plan returns the configured plan for a tier, or false when the tier is not
// purchasable (free).
func (c *Config) Plan(tier plans.Tier) (Plan, bool) {
	p, ok := c.Plans[tier]
	return p, ok
}

// ResumeCheckoutURL builds the link a recovery nudge sends the customer to.
func (c *Config) ResumeCheckoutURL(sessionID string) string {
	return fmt.Sprintf("%s/?resume_session=%s", c.AppBaseURL, sessionID)
}

func envInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envIntList(key string, def []int) []int {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return def
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
