// Package permission decides whether the engine may invoke an action,
// based on configured allow/deny pattern rules.
package permission

import "strings"

// RuleSet holds the two ordered rule groups. Deny always wins.
type RuleSet struct {
	Allow []string
	Deny  []string
}

// RuleProvider exposes the current rule sets. Implementations may swap the
// sets at any time (hot reload); the evaluator reads through on every call
// and never caches.
type RuleProvider interface {
	Rules() RuleSet
}

// StaticRules is a RuleProvider over a fixed rule set
type StaticRules RuleSet

// Rules returns the fixed rule set
func (s StaticRules) Rules() RuleSet { return RuleSet(s) }

// Evaluator checks action invocations against the provider's rules
type Evaluator struct {
	provider RuleProvider
}

// NewEvaluator creates an Evaluator reading rules from the given provider
func NewEvaluator(provider RuleProvider) *Evaluator {
	return &Evaluator{provider: provider}
}

// IsApproved reports whether the action may run without human approval.
// The deny set is evaluated first; a deny match is final regardless of the
// allow set. Absence from both sets denies.
func (e *Evaluator) IsApproved(name string, args map[string]string) bool {
	pattern := FormatPattern(name, args)
	rules := e.provider.Rules()

	for _, rule := range rules.Deny {
		if ruleMatches(rule, pattern) {
			return false
		}
	}
	for _, rule := range rules.Allow {
		if ruleMatches(rule, pattern) {
			return true
		}
	}
	return false
}

// ruleMatches checks one rule against a canonical pattern, in order:
// exact equality, the name(*) wildcard form, bare-name equality when both
// sides are bare, then plain substring containment. The substring fallback
// deliberately matches argument fragments (rule "status=done" matches
// "update_task(id=1,status=done)") and is looser than structured argument
// matching.
func ruleMatches(rule, candidate string) bool {
	if rule == candidate {
		return true
	}
	if name, ok := strings.CutSuffix(rule, "(*)"); ok {
		return strings.HasPrefix(candidate, name+"(")
	}
	if !strings.Contains(rule, "(") && !strings.Contains(candidate, "(") {
		return rule == candidate
	}
	return strings.Contains(candidate, rule)
}
