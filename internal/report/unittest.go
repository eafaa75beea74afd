package report

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/slok/remoterun/internal/model"
)

// captureMarker starts the captured stdout/stderr block some test runners
// append to failure messages. Summaries are cut there.
const captureMarker = "begin captured"

const noMessageFound = "No message found in xml output, check logs."

// Failure kinds inside a report record.
const (
	faultKindFailure = "failure"
	faultKindError   = "error"
)

// junit XML shape. The root element can be either a <testsuites> aggregate or
// a single bare <testsuite>, both decode into junitDocument.
type junitDocument struct {
	XMLName  xml.Name
	Failures string       `xml:"failures,attr"`
	Errors   string       `xml:"errors,attr"`
	Suites   []junitSuite `xml:"testsuite"`
	Cases    []junitCase  `xml:"testcase"`
}

type junitSuite struct {
	Suites []junitSuite `xml:"testsuite"`
	Cases  []junitCase  `xml:"testcase"`
}

type junitCase struct {
	Name      string       `xml:"name,attr"`
	ClassName string       `xml:"classname,attr"`
	Failures  []junitFault `xml:"failure"`
	Errors    []junitFault `xml:"error"`
}

type junitFault struct {
	Message string `xml:"message,attr"`
}

// UnitTestParser parses JUnit style unit-test XML reports.
type UnitTestParser struct{}

// NewUnitTestParser creates a new unit-test report parser.
func NewUnitTestParser() *UnitTestParser {
	return &UnitTestParser{}
}

// Parse returns the rendered one-line summary of the first failed testcase
// plus the full structured failure record of the document.
func (p *UnitTestParser) Parse(doc []byte) (string, *model.ReportRecord, error) {
	var root junitDocument
	if err := xml.Unmarshal(doc, &root); err != nil {
		return "", nil, fmt.Errorf("could not parse report xml: %w", err)
	}

	// Fast path: the report states there is nothing wrong.
	if intAttr(root.Failures) == 0 && intAttr(root.Errors) == 0 {
		return "", nil, nil
	}

	failed := failedCases(root)
	if len(failed) == 0 {
		return "", nil, nil
	}

	summary := ""
	suites := map[string][]model.ReportFailure{}
	for _, tc := range failed {
		name := tc.Name
		if name == "" {
			name = "test-name"
		}
		suite := tc.ClassName
		if suite == "" {
			suite = "suite-name"
		}

		for _, fault := range tc.faults() {
			message := fault.Message
			if message == "" {
				message = noMessageFound
			}
			suites[suite] = append(suites[suite], model.ReportFailure{
				Kind:     fault.Kind,
				Testcase: name,
				Message:  message,
			})
			if summary == "" {
				summary = renderSummary(fault.Kind, name, suite, message)
			}
		}
	}

	record := &model.ReportRecord{
		FailedTestsuites: suites,
		NumOfFailures:    len(failed),
	}

	return summary, record, nil
}

// renderSummary builds the one-line first-failure message, truncating the
// reason at the capture marker when present.
func renderSummary(kind, name, suite, message string) string {
	reason := message
	if i := strings.Index(reason, captureMarker); i >= 0 {
		reason = reason[:i]
	}
	s := fmt.Sprintf("%s: Test `%s` of `%s`. Reason: %s.", strings.ToUpper(kind), name, suite, strings.TrimSpace(reason))
	return strings.ReplaceAll(s, "\n", " ")
}

type taggedFault struct {
	Kind    string
	Message string
}

func (c junitCase) faults() []taggedFault {
	fs := make([]taggedFault, 0, len(c.Failures)+len(c.Errors))
	for _, f := range c.Failures {
		fs = append(fs, taggedFault{Kind: faultKindFailure, Message: f.Message})
	}
	for _, f := range c.Errors {
		fs = append(fs, taggedFault{Kind: faultKindError, Message: f.Message})
	}
	return fs
}

// failedCases walks the whole document in order and returns every testcase
// that has at least one failure or error child.
func failedCases(root junitDocument) []junitCase {
	var failed []junitCase

	var walkCases func(cases []junitCase)
	walkCases = func(cases []junitCase) {
		for _, tc := range cases {
			if len(tc.Failures) > 0 || len(tc.Errors) > 0 {
				failed = append(failed, tc)
			}
		}
	}

	var walkSuites func(suites []junitSuite)
	walkSuites = func(suites []junitSuite) {
		for _, s := range suites {
			walkCases(s.Cases)
			walkSuites(s.Suites)
		}
	}

	walkCases(root.Cases)
	walkSuites(root.Suites)

	return failed
}

// intAttr parses a counter attribute, missing or malformed counts as -1 so it
// never triggers the zero fast path.
func intAttr(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
