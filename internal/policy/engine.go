package policy

import (
	"net/http"
	"strings"
	"sync"

	"github.com/raakeshmj/vpnshield/internal/authz"
)

// Matcher defines criteria to apply a policy
type Matcher struct {
	Method string `json:"method,omitempty"` // "*" or specific
	Path   string `json:"path"`             // Prefix match
}

// Rules defines what to enforce
type Rules struct {
	AuthRequired bool       `json:"auth_required"`
	MinRole      authz.Role `json:"min_role,omitempty"`
	MinPlan      authz.Plan `json:"min_plan,omitempty"`
}

// Policy is a named set of rules
type Policy struct {
	ID      string  `json:"id"`
	Matcher Matcher `json:"matcher"`
	Rules   Rules   `json:"rules"`
}

// Default applies when no policy matches.
var Default = Policy{
	ID:    "default",
	Rules: Rules{AuthRequired: true},
}

// Engine evaluates requests against policies
type Engine struct {
	mu       sync.RWMutex
	policies []Policy
}

func NewEngine(policies ...Policy) *Engine {
	return &Engine{
		policies: policies,
	}
}

// LoadPolicies replaces the current set
func (e *Engine) LoadPolicies(newPolicies []Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = newPolicies
}

// Policies returns a copy of the current set.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Evaluate finds the first matching policy, or Default.
// Order matters: first match wins, so list specific paths first.
func (e *Engine) Evaluate(r *http.Request) *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i := range e.policies {
		p := e.policies[i]
		if match(p.Matcher, r) {
			return &p
		}
	}
	d := Default
	return &d
}

func match(m Matcher, r *http.Request) bool {
	if m.Method != "" && m.Method != "*" && m.Method != r.Method {
		return false
	}

	// A trailing slash matches the subtree; otherwise the path must match
	// exactly or continue with a '/'.
	path := r.URL.Path
	if strings.HasSuffix(m.Path, "/") {
		return strings.HasPrefix(path, m.Path)
	}
	return path == m.Path || strings.HasPrefix(path, m.Path+"/")
}
