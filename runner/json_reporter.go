package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JSONReporter writes a machine-readable summary of the run: one entry per
// case plus the per-dimension tallies, for downstream tooling that wants more
// structure than JUnit XML offers.
type JSONReporter struct {
	filePath  string
	startTime time.Time
}

type jsonReportDocument struct {
	StartTime  time.Time                  `json:"startTime"`
	EndTime    time.Time                  `json:"endTime"`
	OK         bool                       `json:"ok"`
	Counts     map[Outcome]int            `json:"counts"`
	Cases      []jsonReportCase           `json:"cases"`
	Dimensions map[string]jsonReportCount `json:"dimensions"`
}

type jsonReportCase struct {
	ID        string  `json:"id"`
	Dialer    string  `json:"dialer"`
	Listener  string  `json:"listener"`
	Transport string  `json:"transport"`
	Security  string  `json:"security,omitempty"`
	Muxer     string  `json:"muxer,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Category  string  `json:"category,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	LatencyMS float64 `json:"latencyMs,omitempty"`
	Attempts  int     `json:"attempts,omitempty"`
}

type jsonReportCount struct {
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	PassRate float64 `json:"passRate"`
}

func NewJSONReporter(filePath string) *JSONReporter {
	return &JSONReporter{filePath: filePath, startTime: time.Now()}
}

func (j *JSONReporter) CaseStarted(string)      {}
func (j *JSONReporter) CaseFinished(TestResult) {}

func (j *JSONReporter) EndLog(results Results) error {
	fmt.Printf("Writing JSON report to %s\n", j.filePath)

	doc := jsonReportDocument{
		StartTime:  j.startTime,
		EndTime:    time.Now(),
		OK:         results.OK(),
		Counts:     results.Counts(),
		Dimensions: make(map[string]jsonReportCount),
	}
	for _, result := range results.Results {
		entry := jsonReportCase{
			ID:        result.ID,
			Dialer:    result.Case.Dialer.Name,
			Listener:  result.Case.Listener.Name,
			Transport: string(result.Case.Transport),
			Outcome:   result.Outcome,
			Category:  string(result.Category),
			Reason:    result.Reason,
			LatencyMS: float64(result.Latency) / float64(time.Millisecond),
			Attempts:  result.Attempts,
		}
		if !result.Case.Transport.Standalone() {
			entry.Security = string(result.Case.Security)
			entry.Muxer = string(result.Case.Muxer)
		}
		doc.Cases = append(doc.Cases, entry)
	}
	for key, d := range results.ByDimension() {
		doc.Dimensions[key] = jsonReportCount{
			Passed:   d.Passed,
			Failed:   d.Failed,
			Skipped:  d.Skipped,
			PassRate: d.PassRate(),
		}
	}

	bytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	bytes = append(bytes, '\n')

	return os.WriteFile(j.filePath, bytes, 0644) //nolint:gosec
}
