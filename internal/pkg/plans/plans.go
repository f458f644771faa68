package plans

import (
	"strings"

	"github.com/kazka-books/kazka/app/models"
)

type Plan string

const (
	PlanMini    Plan = models.PLAN_MINI
	PlanMaxi    Plan = models.PLAN_MAXI
	PlanPremium Plan = models.PLAN_PREMIUM
)

// Monthly prices in kopiyky.
const (
	priceMini    int64 = 30000
	priceMaxi    int64 = 50000
	pricePremium int64 = 80000
)

// Parse normalizes a user supplied plan name. The second return value is false
// for anything that is not a known plan.
func Parse(raw string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanMini:
		return PlanMini, true
	case PlanMaxi:
		return PlanMaxi, true
	case PlanPremium:
		return PlanPremium, true
	default:
		return "", false
	}
}

// Price returns the monthly price of a plan in minor currency units.
func Price(p Plan) int64 {
	switch p {
	case PlanPremium:
		return pricePremium
	case PlanMaxi:
		return priceMaxi
	case PlanMini:
		return priceMini
	default:
		return 0
	}
}

// BooksPerMonth returns how many books a subscriber receives per delivery cycle.
func BooksPerMonth(p Plan) int {
	switch p {
	case PlanPremium:
		return 8
	case PlanMaxi:
		return 5
	case PlanMini:
		return 3
	default:
		return 0
	}
}

// Title is the human readable name used in invoice descriptions.
func Title(p Plan) string {
	switch p {
	case PlanPremium:
		return "Kazka Premium"
	case PlanMaxi:
		return "Kazka Maxi"
	case PlanMini:
		return "Kazka Mini"
	default:
		return "Kazka"
	}
}
