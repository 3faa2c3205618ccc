package entitlements

import "strings"

type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
)

// Normalize maps arbitrary input to a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanStandard):
		return PlanStandard
	case string(PlanPremium):
		return PlanPremium
	default:
		return PlanFree
	}
}

// Rank orders plans so the best of several memberships can win.
func Rank(plan Plan) int {
	switch plan {
	case PlanPremium:
		return 2
	case PlanStandard:
		return 1
	default:
		return 0
	}
}

// Paid reports whether a plan goes through the purchase engine at all.
// The free tier is granted on registration and never billed.
func Paid(plan Plan) bool {
	return Rank(plan) > 0
}

// Limits returns what a plan entitles a school to. The presentation layer
// consumes these; the billing engine only decides which plan is active.
func Limits(plan Plan) (maxTeachers, maxCourses int, analytics bool) {
	switch plan {
	case PlanPremium:
		return 0, 0, true // 0 = unlimited
	case PlanStandard:
		return 25, 100, false
	default:
		return 3, 10, false
	}
}
