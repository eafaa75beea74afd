package model

// ReportFailure is a single failed testcase extracted from a test report.
type ReportFailure struct {
	// Kind is either "failure" or "error".
	Kind string `yaml:"kind"`
	// Testcase is the name of the failed testcase.
	Testcase string `yaml:"testcase"`
	// Message is the full failure reason as found in the report.
	Message string `yaml:"message"`
}

// ReportRecord groups every failure extracted from one report file, keyed by
// test suite, in document order.
type ReportRecord struct {
	FailedTestsuites map[string][]ReportFailure `yaml:"failed_testsuites"`
	NumOfFailures    int                        `yaml:"num_of_failures"`
	File             string                     `yaml:"xml_file"`
}
