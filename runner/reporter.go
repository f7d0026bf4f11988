package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var consoleCaseFailedColor = color.New(color.FgRed)                //nolint:gochecknoglobals
var consoleCaseSkippedColor = color.New(color.Faint, color.FgBlue) //nolint:gochecknoglobals
var consoleDebugOutputColor = color.New(color.Faint)               //nolint:gochecknoglobals
var allCasesPassedColor = color.New(color.FgGreen)                 //nolint:gochecknoglobals

// Reporter receives case lifecycle notifications during a run and the full
// results afterward. Implementations must be safe for concurrent use; workers
// report from multiple goroutines.
type Reporter interface {
	CaseStarted(caseID string)
	CaseFinished(result TestResult)
	EndLog(results Results) error
}

type nullReporter struct{}

func (n nullReporter) CaseStarted(string)      {}
func (n nullReporter) CaseFinished(TestResult) {}
func (n nullReporter) EndLog(Results) error    { return nil }

// ConsoleReporter prints case progress as it happens and a summary with
// per-dimension pass rates at the end.
type ConsoleReporter struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c ConsoleReporter) CaseStarted(caseID string) {
	fmt.Printf("[%s]\n", caseID)
}

func (c ConsoleReporter) CaseFinished(result TestResult) {
	switch result.Outcome {
	case OutcomeSkipped:
		if result.Reason == "" {
			_, _ = consoleCaseSkippedColor.Printf("  SKIPPED: %s\n", result.ID)
		} else {
			_, _ = consoleCaseSkippedColor.Printf("  SKIPPED: %s (%s)\n", result.ID, result.Reason)
		}
		return
	case OutcomeFailed, OutcomeTimedOut:
		_, _ = consoleCaseFailedColor.Printf("  FAILED: %s [%s] %s\n", result.ID, result.Category, result.Reason)
		if result.Attempts > 1 {
			_, _ = consoleCaseFailedColor.Printf("  (after %d attempts)\n", result.Attempts)
		}
	}
	failed := result.Outcome != OutcomePassed
	if len(result.Output) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		_, _ = consoleDebugOutputColor.Println(result.Output.ToString("    DEBUG "))
	}
}

func (c ConsoleReporter) EndLog(results Results) error {
	PrintResults(results)
	return nil
}

// PrintResults writes the final verdict and the per-dimension breakdown to
// the console.
func PrintResults(results Results) {
	counts := results.Counts()
	fmt.Printf("\n%d passed, %d failed, %d skipped, %d timed out\n",
		counts[OutcomePassed], counts[OutcomeFailed], counts[OutcomeSkipped], counts[OutcomeTimedOut])

	dims := results.ByDimension()
	if len(dims) > 0 {
		fmt.Println("\nPass rate by dimension:")
		for _, key := range DimensionKeys(dims) {
			d := dims[key]
			line := fmt.Sprintf("  %-28s %3.0f%% (%d/%d", key, d.PassRate()*100, d.Passed, d.Passed+d.Failed)
			if d.Skipped > 0 {
				line += fmt.Sprintf(", %d skipped", d.Skipped)
			}
			line += ")"
			fmt.Println(line)
		}
	}

	if results.OK() {
		_, _ = allCasesPassedColor.Println("\nAll cases passed")
	} else {
		failures := results.Failures()
		_, _ = consoleCaseFailedColor.Fprintf(os.Stderr, "\nFAILED CASES (%d):\n", len(failures))
		for _, f := range failures {
			_, _ = consoleCaseFailedColor.Fprintf(os.Stderr, "  * %s [%s] %s\n", f.ID, f.Category, f.Reason)
		}
	}
}

// MultiReporter fans notifications out to several reporters, such as console
// plus JUnit plus JSON.
type MultiReporter struct {
	Reporters []Reporter
}

func (m MultiReporter) CaseStarted(caseID string) {
	for _, r := range m.Reporters {
		r.CaseStarted(caseID)
	}
}

func (m MultiReporter) CaseFinished(result TestResult) {
	for _, r := range m.Reporters {
		r.CaseFinished(result)
	}
}

func (m MultiReporter) EndLog(results Results) error {
	var errs []string
	for _, r := range m.Reporters {
		if err := r.EndLog(results); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("one or more reporters failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
