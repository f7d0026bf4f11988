package runner

import (
	"encoding/xml"
	"fmt"
	"os"
	"sync"
	"time"
)

// JUnitReporter writes run results in the JUnit XML schema so CI systems can
// ingest them. Cases are grouped into one suite per dialer environment.
type JUnitReporter struct {
	filePath string
	filters  RegexFilters
	caseIDs  []string // preserves the order that the cases were started in
	cases    map[string]jUnitCaseStatus
	lock     sync.Mutex
}

type jUnitCaseStatus struct {
	result    TestResult
	startTime time.Time
	duration  time.Duration
}

// Struct definitions for the JUnit XML schema - see https://github.com/jstemmer/go-junit-report

type jUnitXMLDocument struct {
	XMLName xml.Name            `xml:"testsuites"`
	Suites  []jUnitXMLTestSuite `xml:"testsuite"`
}

type jUnitXMLTestSuite struct {
	XMLName    xml.Name           `xml:"testsuite"`
	Tests      int                `xml:"tests,attr"`
	Failures   int                `xml:"failures,attr"`
	Time       string             `xml:"time,attr"`
	Name       string             `xml:"name,attr"`
	Properties []jUnitXMLProperty `xml:"properties>property,omitempty"`
	TestCases  []jUnitXMLTestCase `xml:"testcase"`
}

type jUnitXMLTestCase struct {
	XMLName     xml.Name             `xml:"testcase"`
	Classname   string               `xml:"classname,attr"`
	Name        string               `xml:"name,attr"`
	Time        string               `xml:"time,attr"`
	SkipMessage *jUnitXMLSkipMessage `xml:"skipped,omitempty"`
	Failure     *jUnitXMLFailure     `xml:"failure,omitempty"`
}

type jUnitXMLSkipMessage struct {
	Message string `xml:"message,attr"`
}

type jUnitXMLProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type jUnitXMLFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

func NewJUnitReporter(filePath string, filters RegexFilters) *JUnitReporter {
	return &JUnitReporter{
		filePath: filePath,
		filters:  filters,
		cases:    make(map[string]jUnitCaseStatus),
	}
}

func (j *JUnitReporter) CaseStarted(caseID string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.caseIDs = append(j.caseIDs, caseID)
	j.cases[caseID] = jUnitCaseStatus{startTime: time.Now()}
}

func (j *JUnitReporter) CaseFinished(result TestResult) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.cases[result.ID]
	status.result = result
	status.duration = time.Since(status.startTime)
	j.cases[result.ID] = status
}

func (j *JUnitReporter) EndLog(results Results) error {
	fmt.Printf("Writing JUnit data to %s\n", j.filePath)

	j.lock.Lock()
	defer j.lock.Unlock()

	var doc jUnitXMLDocument

	properties := []jUnitXMLProperty{
		{
			Name:  "cases.filter.mustMatch",
			Value: j.filters.MustMatch.String(),
		},
		{
			Name:  "cases.filter.mustNotMatch",
			Value: j.filters.MustNotMatch.String(),
		},
	}

	for _, dialerName := range j.dialerNames() {
		suite := jUnitXMLTestSuite{
			Name:       fmt.Sprintf("interop tests: dialer %s", dialerName),
			Properties: properties,
		}
		suiteTotalDuration := time.Duration(0)
		for _, caseID := range j.caseIDs {
			status := j.cases[caseID]
			if status.result.Case.Dialer == nil || status.result.Case.Dialer.Name != dialerName {
				continue
			}

			suite.Tests++
			suiteTotalDuration += status.duration

			testCase := jUnitXMLTestCase{
				Classname: dialerName,
				Name:      caseID,
				Time:      jUnitDurationString(status.duration),
			}
			switch status.result.Outcome {
			case OutcomeSkipped:
				testCase.SkipMessage = &jUnitXMLSkipMessage{Message: status.result.Reason}
			case OutcomeFailed, OutcomeTimedOut:
				suite.Failures++
				testCase.Failure = &jUnitXMLFailure{
					Message:  status.result.Reason,
					Type:     string(status.result.Category),
					Contents: status.result.Output.ToString(""),
				}
			}

			suite.TestCases = append(suite.TestCases, testCase)
		}
		suite.Time = jUnitDurationString(suiteTotalDuration)
		doc.Suites = append(doc.Suites, suite)
	}

	bytes, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	bytes = append(bytes, '\n')

	return os.WriteFile(j.filePath, bytes, 0644) //nolint:gosec
}

func (j *JUnitReporter) dialerNames() []string {
	var ret []string
	seen := make(map[string]bool)
	for _, caseID := range j.caseIDs {
		c := j.cases[caseID].result.Case
		if c.Dialer != nil && !seen[c.Dialer.Name] {
			ret = append(ret, c.Dialer.Name)
			seen[c.Dialer.Name] = true
		}
	}
	return ret
}

func jUnitDurationString(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
