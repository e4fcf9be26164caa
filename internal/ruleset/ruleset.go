// Package ruleset implements the declarative deployment mode: a static table of
// pattern → redirect target rules, evaluated first-match-wins, that can also
// be exported as a Chrome declarativeNetRequest rule list.
//
// Example rules.yaml:
//
//	apiVersion: asinshort/v1
//	kind: RuleSet
//	metadata:
//	  name: amazon-co-jp
//	spec:
//	  canonical: '^(?i:https://www\.amazon\.co\.jp/dp/)[A-Za-z0-9]{10}$'
//	  hosts: [amazon.co.jp]
//	  rules:
//	    - id: 1
//	      name: gp-product
//	      pattern: '(?i:/gp/product/)([A-Za-z0-9]{10})'
//	      target: 'https://www.amazon.co.jp/dp/${1}'
package ruleset

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"asinshort/internal/canon"
)

const (
	APIVersion = "asinshort/v1"
	Kind       = "RuleSet"
)

// RuleSet is the parsed rule table document.
type RuleSet struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

type Metadata struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
}

type Spec struct {
	// Canonical matches URLs that are already in final form. They are passed
	// through before any rule is consulted, which is what keeps a redirect
	// target from being redirected again.
	Canonical string `yaml:"canonical"`

	// Hosts restricts evaluation to these registrable domains. Empty means
	// every host.
	Hosts []string `yaml:"hosts,omitempty"`

	Rules []Rule `yaml:"rules"`
}

// Rule maps one URL pattern to a redirect target. Target may reference the
// pattern's capture groups as $1 or ${1}. Patterns match exactly as written,
// case-insensitive parts say so with (?i:...).
type Rule struct {
	ID      int    `yaml:"id"`
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Target  string `yaml:"target"`

	re *regexp.Regexp
}

// Default returns the built-in table, generated from canon's rule list so
// both deployment modes agree.
func Default() *RuleSet {
	set := &RuleSet{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata:   Metadata{Name: "amazon-co-jp"},
		Spec: Spec{
			Canonical: canon.CanonicalPattern,
			Hosts:     []string{canon.Domain},
		},
	}
	for i, r := range canon.Rules() {
		set.Spec.Rules = append(set.Spec.Rules, Rule{
			ID:      i + 1,
			Name:    r.Shape.String(),
			Pattern: r.Pattern,
			Target:  canon.CanonicalURL("${1}"),
		})
	}
	return set
}

// Load reads and parses a rule table from a YAML file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates a rule table.
func Parse(data []byte) (*RuleSet, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Marshal renders the table back to YAML.
func (s *RuleSet) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Validate checks document identity and every rule, reporting all problems
// at once.
func (s *RuleSet) Validate() error {
	var err error
	if s.Kind != Kind {
		err = multierr.Append(err, fmt.Errorf("unexpected kind %q, want %q", s.Kind, Kind))
	}
	if s.APIVersion != APIVersion {
		err = multierr.Append(err, fmt.Errorf("unsupported apiVersion %q", s.APIVersion))
	}
	if len(s.Spec.Rules) == 0 {
		err = multierr.Append(err, fmt.Errorf("rule table has no rules"))
	}
	if s.Spec.Canonical != "" {
		if _, e := SafeCompile(s.Spec.Canonical); e != nil {
			err = multierr.Append(err, fmt.Errorf("canonical: %w", e))
		}
	}

	seen := make(map[int]bool, len(s.Spec.Rules))
	for i := range s.Spec.Rules {
		r := &s.Spec.Rules[i]
		if r.ID <= 0 {
			err = multierr.Append(err, fmt.Errorf("rule #%d (%s): id must be positive", i, r.Name))
		} else if seen[r.ID] {
			err = multierr.Append(err, fmt.Errorf("rule #%d (%s): duplicate id %d", i, r.Name, r.ID))
		}
		seen[r.ID] = true

		if r.Pattern == "" {
			err = multierr.Append(err, fmt.Errorf("rule %d: empty pattern", r.ID))
			continue
		}
		if _, e := r.compile(); e != nil {
			err = multierr.Append(err, e)
		}
		if !strings.Contains(r.Target, "$1") && !strings.Contains(r.Target, "${1}") {
			err = multierr.Append(err, fmt.Errorf("rule %d: target %q does not reference capture group 1", r.ID, r.Target))
		}
	}
	return err
}

func (r *Rule) compile() (*regexp.Regexp, error) {
	re, err := SafeCompile(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %d (%s): %w", r.ID, r.Name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("rule %d (%s): pattern has no capture group", r.ID, r.Name)
	}
	return re, nil
}

// apply returns the expanded target when the rule matches link.
func (r *Rule) apply(link string) (string, bool) {
	m := r.re.FindStringSubmatchIndex(link)
	if m == nil {
		return "", false
	}
	return string(r.re.ExpandString(nil, r.Target, link, m)), true
}
