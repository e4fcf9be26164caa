package ruleset

import (
	"fmt"
	"regexp"
)

const maxPatternLength = 1000

var (
	nestedQuantifierRe = regexp.MustCompile(`\)[+*?]\s*[+*?]`)
	groupedNestedRe    = regexp.MustCompile(`\([^)]*[+*]\)[+*]`)
)

// SafeCompile compiles a user supplied pattern once it passes
// ValidateRegexComplexity.
func SafeCompile(pattern string) (*regexp.Regexp, error) {
	if err := ValidateRegexComplexity(pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex compile error: %w", err)
	}
	return re, nil
}

// ValidateRegexComplexity rejects overly long patterns and obvious nested
// quantifiers such as (a+)+. Chrome refuses those in declarativeNetRequest
// rules, so catching them here keeps exported tables loadable.
func ValidateRegexComplexity(pattern string) error {
	if len(pattern) > maxPatternLength {
		return fmt.Errorf("regex pattern exceeds maximum length (%d > %d)", len(pattern), maxPatternLength)
	}
	if nestedQuantifierRe.MatchString(pattern) || groupedNestedRe.MatchString(pattern) {
		return fmt.Errorf("regex contains nested quantifiers: %s", pattern)
	}
	return nil
}
