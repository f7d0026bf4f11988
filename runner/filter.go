package runner

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter decides whether to run a specific case.
type Filter interface {
	Match(caseID string) bool
}

// RegexFilters selects cases by ID. A case runs only if it matches at least
// one MustMatch pattern (when any are given) and no MustNotMatch pattern.
type RegexFilters struct {
	MustMatch    PatternList
	MustNotMatch PatternList
}

func (r RegexFilters) Match(caseID string) bool {
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(caseID)) &&
		!r.MustNotMatch.AnyMatch(caseID)
}

type PatternList []*regexp.Regexp

func (l PatternList) String() string {
	ss := make([]string, 0, len(l))
	for _, p := range l {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (l *PatternList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	*l = append(*l, rx)
	return nil
}

func (l PatternList) IsDefined() bool {
	return len(l) != 0
}

func (l PatternList) AnyMatch(caseID string) bool {
	for _, p := range l {
		if p.MatchString(caseID) {
			return true
		}
	}
	return false
}

// PrintFilterDescription explains up front why some cases will be skipped,
// either due to filter parameters or due to environments that do not support
// every capability in the matrix.
func PrintFilterDescription(filters RegexFilters, missingCapabilities []string) {
	if filters.MustMatch.IsDefined() || filters.MustNotMatch.IsDefined() {
		fmt.Println("Some cases will be skipped based on the filter criteria for this run:")
		if filters.MustMatch.IsDefined() {
			fmt.Printf("  skip any not matching %s\n", filters.MustMatch)
		}
		if filters.MustNotMatch.IsDefined() {
			fmt.Printf("  skip any matching %s\n", filters.MustNotMatch)
		}
		fmt.Println()
	}

	if len(missingCapabilities) > 0 {
		fmt.Println("Some cases will be skipped because not every environment supports the following capabilities:")
		fmt.Printf("  %s\n", strings.Join(missingCapabilities, ", "))
		fmt.Println()
	}
}
