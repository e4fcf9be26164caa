package ruleset

import (
	"fmt"
	"regexp"

	"asinshort/internal/canon"
)

// Outcome is the result class of evaluating one URL.
type Outcome string

const (
	OutcomeRedirect   Outcome = "redirect"
	OutcomeCanonical  Outcome = "canonical"
	OutcomeNoMatch    Outcome = "nomatch"
	OutcomeOutOfScope Outcome = "out_of_scope"
)

// Decision is what the engine decided for one URL. Rule and Target are set
// only for OutcomeRedirect.
type Decision struct {
	Outcome Outcome
	Target  string
	Rule    *Rule
}

// Engine evaluates a compiled rule table. It is immutable once built and safe
// for concurrent use.
type Engine struct {
	set       *RuleSet
	canonical *regexp.Regexp
	rules     []*Rule
}

// NewEngine validates and compiles set. Patterns are matched as written.
func NewEngine(set *RuleSet) (*Engine, error) {
	if set == nil {
		set = Default()
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule table: %w", err)
	}

	e := &Engine{set: set}
	if set.Spec.Canonical != "" {
		re, err := SafeCompile(set.Spec.Canonical)
		if err != nil {
			return nil, fmt.Errorf("canonical pattern: %w", err)
		}
		e.canonical = re
	}
	for i := range set.Spec.Rules {
		r := &set.Spec.Rules[i]
		re, err := r.compile()
		if err != nil {
			return nil, err
		}
		r.re = re
		e.rules = append(e.rules, r)
	}
	return e, nil
}

func (e *Engine) RuleSet() *RuleSet {
	return e.set
}

// Evaluate runs link through the table: host scope first, then the canonical
// pass-through, then the rules in table order.
func (e *Engine) Evaluate(link string) Decision {
	if !e.inScope(link) {
		return Decision{Outcome: OutcomeOutOfScope}
	}
	if e.canonical != nil && e.canonical.MatchString(link) {
		return Decision{Outcome: OutcomeCanonical}
	}
	for _, r := range e.rules {
		if target, ok := r.apply(link); ok {
			return Decision{Outcome: OutcomeRedirect, Target: target, Rule: r}
		}
	}
	return Decision{Outcome: OutcomeNoMatch}
}

func (e *Engine) inScope(link string) bool {
	if len(e.set.Spec.Hosts) == 0 {
		return true
	}
	for _, h := range e.set.Spec.Hosts {
		if canon.InScope(link, h) {
			return true
		}
	}
	return false
}
