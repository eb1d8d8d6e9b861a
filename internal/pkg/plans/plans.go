package plans

import "strings"

type Tier string

const (
	TierFree Tier = "free"
	TierOne  Tier = "one"
	TierPack Tier = "pack"
	TierSub  Tier = "sub"
)

// Checkout modes as the payment provider understands them.
const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// Normalize maps arbitrary input onto a known tier, defaulting to free.
func Normalize(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierOne):
		return TierOne
	case string(TierPack):
		return TierPack
	case string(TierSub):
		return TierSub
	default:
		return TierFree
	}
}

// Rank orders tiers: free < one < pack < sub.
func Rank(tier Tier) int {
	switch tier {
	case TierSub:
		return 3
	case TierPack:
		return 2
	case TierOne:
		return 1
	default:
		return 0
	}
}

// Max returns the higher-ranked of two tiers.
func Max(a, b Tier) Tier {
	if Rank(b) > Rank(a) {
		return b
	}
	return a
}

// IsEntitlingStatus reports whether a provider subscription status keeps the
// subscription counted as active.
func IsEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}
