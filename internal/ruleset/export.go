package ruleset

import (
	"encoding/json"
	"regexp"
)

// DNRRule is one entry of a Chrome declarativeNetRequest rule list.
type DNRRule struct {
	ID        int          `json:"id"`
	Priority  int          `json:"priority"`
	Action    DNRAction    `json:"action"`
	Condition DNRCondition `json:"condition"`
}

type DNRAction struct {
	Type     string       `json:"type"`
	Redirect *DNRRedirect `json:"redirect,omitempty"`
}

type DNRRedirect struct {
	RegexSubstitution string `json:"regexSubstitution"`
}

type DNRCondition struct {
	RegexFilter              string   `json:"regexFilter"`
	IsURLFilterCaseSensitive bool     `json:"isUrlFilterCaseSensitive"`
	RequestDomains           []string `json:"requestDomains,omitempty"`
	ResourceTypes            []string `json:"resourceTypes"`
}

var groupRefRe = regexp.MustCompile(`\$\{?(\d)\}?`)

// Export renders the table as declarativeNetRequest rules. The host engine
// picks the highest priority match, so table order becomes descending
// priority with the canonical pass-through as an allow rule above all of
// them. A regexSubstitution only replaces the matched span, hence every
// filter is widened to cover the whole URL; the lazy prefix keeps the first
// occurrence winning as it does in Evaluate. Filters are case-sensitive so
// the host engine matches them as written, the way Evaluate does.
func (s *RuleSet) Export() []DNRRule {
	n := len(s.Spec.Rules)
	out := make([]DNRRule, 0, n+1)
	resources := []string{"main_frame"}

	maxID := 0
	for _, r := range s.Spec.Rules {
		if r.ID > maxID {
			maxID = r.ID
		}
	}

	if s.Spec.Canonical != "" {
		out = append(out, DNRRule{
			ID:       maxID + 1,
			Priority: n + 1,
			Action:   DNRAction{Type: "allow"},
			Condition: DNRCondition{
				RegexFilter:              s.Spec.Canonical,
				IsURLFilterCaseSensitive: true,
				RequestDomains:           s.Spec.Hosts,
				ResourceTypes:            resources,
			},
		})
	}

	for i, r := range s.Spec.Rules {
		out = append(out, DNRRule{
			ID:       r.ID,
			Priority: n - i,
			Action: DNRAction{
				Type:     "redirect",
				Redirect: &DNRRedirect{RegexSubstitution: groupRefRe.ReplaceAllString(r.Target, `\$1`)},
			},
			Condition: DNRCondition{
				RegexFilter:              "^.*?" + r.Pattern + ".*$",
				IsURLFilterCaseSensitive: true,
				RequestDomains:           s.Spec.Hosts,
				ResourceTypes:            resources,
			},
		})
	}
	return out
}

// ExportJSON is Export encoded the way extension manifests reference it.
func (s *RuleSet) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(s.Export(), "", "  ")
}
