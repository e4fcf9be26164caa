// Package canon turns Amazon.co.jp product URLs into their shortest form,
// https://www.amazon.co.jp/dp/<ASIN>.
package canon

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"

	"asinshort/pkg/models"
)

const (
	// Host is the only storefront handled.
	Host = "www.amazon.co.jp"
	// Domain is the registrable domain navigations must belong to.
	Domain = "amazon.co.jp"

	// CanonicalPattern matches the final form. Only the literal prefix folds
	// case: Unicode folding would let [A-Z] accept U+017F and U+212A.
	CanonicalPattern = `^(?i:https://www\.amazon\.co\.jp/dp/)` + idClass + `$`

	idClass = `[A-Za-z0-9]{10}`
)

// Rule extracts an ASIN from one family of URL shapes. Pattern is used as
// written; group 1 is the identifier.
type Rule struct {
	Shape   models.Shape
	Pattern string
	re      *regexp.Regexp
}

func newRule(shape models.Shape, pattern string) Rule {
	return Rule{Shape: shape, Pattern: pattern, re: regexp.MustCompile(pattern)}
}

// Match returns the captured identifier.
func (r Rule) Match(link string) (string, bool) {
	m := r.re.FindStringSubmatch(link)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

var canonicalRe = regexp.MustCompile(CanonicalPattern)

// Order matters: the first matching rule wins.
var rules = []Rule{
	newRule(models.ExecObidosASIN, `(?i:/exec/obidos/ASIN/)(`+idClass+`)`),
	newRule(models.OASIN, `(?i:/o/ASIN/)(`+idClass+`)`),
	newRule(models.ExecObidosISBN, `(?i:/exec/obidos/ISBN(?:%3D|=))(`+idClass+`)`),
	newRule(models.OISBN, `(?i:/o/ISBN=)(`+idClass+`)`),
	newRule(models.ExecObidosDetail, `(?i:/exec/obidos/tg/detail/-/)(?:[^/]+/)?(`+idClass+`)`),
	newRule(models.ODetail, `(?i:/o/tg/detail/-/)(?:[^/]+/)?(`+idClass+`)`),
	newRule(models.GPProduct, `(?i:/gp/product/)(`+idClass+`)`),
	newRule(models.GPProductDescription, `(?i:/gp/product/product-description/)(`+idClass+`)`),
	newRule(models.SegmentDP, `/[^/]+(?i:/dp/(?:product-description/)?)(`+idClass+`)`),
	newRule(models.TitleDP, `/[^/]+(?i:/dp/)(`+idClass+`)`),
	newRule(models.QueryDP, `(?i:/dp/)(`+idClass+`)\?`),
}

// Rules returns a copy of the built-in rule list in priority order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// IsCanonical reports whether link already is https://www.amazon.co.jp/dp/<ASIN>
// with nothing before or after it.
func IsCanonical(link string) bool {
	return canonicalRe.MatchString(link)
}

// ExtractIdentifier returns the ASIN captured by the first matching rule.
func ExtractIdentifier(link string) (string, bool) {
	asin, _, ok := extract(link)
	return asin, ok
}

// Classify is ExtractIdentifier that also reports which shape matched.
func Classify(link string) (string, models.Shape) {
	if IsCanonical(link) {
		return link[len(link)-10:], models.Canonical
	}
	asin, shape, ok := extract(link)
	if !ok {
		return "", models.None
	}
	return asin, shape
}

func extract(link string) (string, models.Shape, bool) {
	for _, r := range rules {
		if asin, ok := r.Match(link); ok {
			return asin, r.Shape, true
		}
	}
	return "", models.None, false
}

func CanonicalURL(asin string) string {
	return "https://" + Host + "/dp/" + asin
}

// Rewrite decides what a navigation to link should become. ok is false when
// link is already canonical or carries no recognizable identifier; both mean
// leave the page alone.
func Rewrite(link string) (target, asin string, shape models.Shape, ok bool) {
	if IsCanonical(link) {
		return "", "", models.Canonical, false
	}
	asin, shape, ok = extract(link)
	if !ok {
		return "", "", models.None, false
	}
	return CanonicalURL(asin), asin, shape, true
}

// InScope reports whether rawURL is on a host whose registrable domain is
// suffix, e.g. www.amazon.co.jp or smile.amazon.co.jp for amazon.co.jp.
func InScope(rawURL, suffix string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return strings.EqualFold(etld1, suffix)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// NormalizeInput cleans up a URL typed or pasted by a person: full-width
// characters are folded with NFKC and surrounding whitespace is dropped.
func NormalizeInput(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
