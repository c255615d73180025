// Package authz implements the role and plan ladders used to gate routes.
package authz

import (
	"errors"
	"fmt"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanUltimate   Plan = "ultimate"
	PlanEnterprise Plan = "enterprise"
)

var (
	ErrForbidden   = errors.New("insufficient permissions")
	ErrUnknownRole = errors.New("unknown role")
	ErrUnknownPlan = errors.New("unknown plan")
)

// UpgradeRequiredError is returned when the caller's plan is below the
// route's requirement. Unlike ErrForbidden it is actionable by the client.
type UpgradeRequiredError struct {
	Required Plan
	Current  Plan
}

func (e *UpgradeRequiredError) Error() string {
	return fmt.Sprintf("plan %q required, have %q", e.Required, e.Current)
}

var roleRank = map[Role]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

var planRank = map[Plan]int{
	PlanFree:       1,
	PlanPremium:    2,
	PlanUltimate:   3,
	PlanEnterprise: 4,
}

// Plans lists the plan ladder bottom to top.
func Plans() []Plan {
	return []Plan{PlanFree, PlanPremium, PlanUltimate, PlanEnterprise}
}

// Unknown rungs rank 0 and never satisfy or define a requirement.
func (r Role) rank() int { return roleRank[r] }
func (p Plan) rank() int { return planRank[p] }

// AtLeast reports whether r is at or above need.
func (r Role) AtLeast(need Role) bool {
	return r.rank() > 0 && need.rank() > 0 && r.rank() >= need.rank()
}

// AtLeast reports whether p is at or above need.
func (p Plan) AtLeast(need Plan) bool {
	return p.rank() > 0 && need.rank() > 0 && p.rank() >= need.rank()
}

// RequireRole returns ErrForbidden unless have is at least need. An empty
// requirement always passes.
func RequireRole(have, need Role) error {
	if need == "" || have.AtLeast(need) {
		return nil
	}
	return ErrForbidden
}

// RequirePlan returns an *UpgradeRequiredError unless have is at least need.
// An empty requirement always passes.
func RequirePlan(have, need Plan) error {
	if need == "" || have.AtLeast(need) {
		return nil
	}
	return &UpgradeRequiredError{Required: need, Current: have}
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if r.rank() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if p.rank() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return p, nil
}
