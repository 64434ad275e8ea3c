package authz

import (
	"fmt"
	"strings"
)

// Evaluator evaluates request paths against an ordered rule list.
// It is immutable after construction and safe for concurrent use.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator copies the rule list. Order is preserved; it is the caller's
// contract that exact patterns precede wildcards that would shadow them
// (see [Lint]).
func NewEvaluator(rules []Rule) *Evaluator {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return &Evaluator{rules: out}
}

// Rules returns a copy of the configured rule list in evaluation order.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate walks the rule list in order and applies the predicate of the
// first rule whose pattern matches path. An unmatched path yields
// [RequireAuth]: the posture is deny-by-default, and an anonymous caller is
// challenged rather than hard-denied.
func (e *Evaluator) Evaluate(path string, subject *Subject) Decision {
	for _, rule := range e.rules {
		if matchPattern(rule.Pattern, path) {
			return rule.Access.apply(subject)
		}
	}
	return RequireAuth
}

// matchPattern supports exact paths, a trailing /** wildcard segment, and
// the catch-alls "*" and "**".
func matchPattern(pattern, path string) bool {
	if pattern == "*" || pattern == "**" || pattern == "/**" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == pattern
}

// Lint reports rule-ordering mistakes: an exact pattern declared after a
// wildcard rule that already matches it can never be reached. The matcher
// itself never reorders rules; this check exists so misordered
// configurations fail at build time instead of shipping a shadowed rule.
func Lint(rules []Rule) error {
	for i, rule := range rules {
		if strings.HasSuffix(rule.Pattern, "/**") || rule.Pattern == "*" || rule.Pattern == "**" {
			continue
		}
		for j := 0; j < i; j++ {
			if matchPattern(rules[j].Pattern, rule.Pattern) {
				return fmt.Errorf("rule %d (%q) is unreachable: shadowed by rule %d (%q)",
					i, rule.Pattern, j, rules[j].Pattern)
			}
		}
	}
	return nil
}
