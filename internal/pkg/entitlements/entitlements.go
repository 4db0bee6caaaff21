package entitlements

import (
	"strings"

	"github.com/flowdeck-app/flowdeck/internal/pkg/env"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
)

// Gated actions. The evaluator answers these on every call that creates a
// counted resource.
const (
	ActionCreateWorkflow     = "create_workflow"
	ActionConnectIntegration = "connect_integration"
)

// Limits are the per-tier ceilings; -1 means unlimited. The execution cap is
// enforced by the workflow runner; this service only publishes it.
type Limits struct {
	MaxWorkflows         int64 `json:"max_workflows"`
	MaxIntegrations      int64 `json:"max_integrations"`
	MaxMonthlyExecutions int64 `json:"max_monthly_executions"`
}

// Usage holds the independently computed resource counts for a user.
type Usage struct {
	Workflows    int64 `json:"workflows"`
	Integrations int64 `json:"integrations"`
}

// LimitsFor returns the ceilings for a tier.
func LimitsFor(tier Tier) Limits {
	switch tier {
	case TierPro:
		return Limits{MaxWorkflows: -1, MaxIntegrations: -1, MaxMonthlyExecutions: -1}
	case TierStarter:
		return Limits{MaxWorkflows: 20, MaxIntegrations: 3, MaxMonthlyExecutions: 2000}
	default:
		return Limits{MaxWorkflows: 3, MaxIntegrations: 1, MaxMonthlyExecutions: 100}
	}
}

// TierForPriceID maps a Stripe price id to an internal tier via the
// environment-configured price catalog, defaulting to free.
func TierForPriceID(priceID string) Tier {
	p := strings.TrimSpace(priceID)
	if p == "" {
		return TierFree
	}
	switch p {
	case env.GetEnv("STRIPE_PRO_PRICE_ID", ""):
		return TierPro
	case env.GetEnv("STRIPE_STARTER_PRICE_ID", ""):
		return TierStarter
	default:
		return TierFree
	}
}
