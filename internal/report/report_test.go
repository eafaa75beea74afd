package report_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/slok/remoterun/internal/conn/connmock"
	"github.com/slok/remoterun/internal/model"
	"github.com/slok/remoterun/internal/report"
)

const failingReport = `<testsuite failures="1">
	<testcase name="t1" classname="s1">
		<failure message="boom begin captured stdout noise"/>
	</testcase>
</testsuite>`

const cleanReport = `<testsuite failures="0" errors="0">
	<testcase name="t1" classname="s1"/>
</testsuite>`

// testWriteCloser captures what the scanner writes to the remote record file.
type testWriteCloser struct {
	bytes.Buffer
	closed bool
}

func (w *testWriteCloser) Close() error {
	w.closed = true
	return nil
}

func TestScannerScanFile(t *testing.T) {
	tests := map[string]struct {
		path       string
		mock       func(m *connmock.MockChannel)
		expSummary string
		expRecords int
		expErr     bool
	}{
		"Scanning a failing report should return its summary and keep the record.": {
			path: "/tmp/report.xml",
			mock: func(m *connmock.MockChannel) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(failingReport), nil)
			},
			expSummary: "FAILURE: Test `t1` of `s1`. Reason: boom.",
			expRecords: 1,
		},

		"Scanning a clean report should return nothing.": {
			path: "/tmp/report.xml",
			mock: func(m *connmock.MockChannel) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(cleanReport), nil)
			},
			expSummary: "",
			expRecords: 0,
		},

		"A missing remote file should be treated as not found, not as an error.": {
			path: "/tmp/missing.xml",
			mock: func(m *connmock.MockChannel) {
				m.On("Output", mock.Anything, "cat /tmp/missing.xml").Once().Return([]byte("  \n"), nil)
			},
			expSummary: "",
			expRecords: 0,
		},

		"An empty path should not even touch the channel.": {
			path:       "",
			mock:       func(m *connmock.MockChannel) {},
			expSummary: "",
			expRecords: 0,
		},

		"A malformed report should fail.": {
			path: "/tmp/report.xml",
			mock: func(m *connmock.MockChannel) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte("<testsuite"), nil)
			},
			expErr: true,
		},

		"A fetch failure should fail.": {
			path: "/tmp/report.xml",
			mock: func(m *connmock.MockChannel) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return(nil, fmt.Errorf("transport gone"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mChannel := &connmock.MockChannel{}
			test.mock(mChannel)

			scanner, err := report.NewScanner(report.ScannerConfig{Channel: mChannel})
			require.NoError(t, err)

			summary, err := scanner.ScanFile(context.Background(), test.path)

			if test.expErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.expSummary, summary)
				assert.Len(t, scanner.Records(), test.expRecords)
			}
			mChannel.AssertExpectations(t)
		})
	}
}

func TestScannerScanDir(t *testing.T) {
	// Three report files, only the second one has a failure.
	mChannel := &connmock.MockChannel{}
	mChannel.On("Output", mock.Anything, "ls -d /tmp/reports/*.xml").Once().
		Return([]byte("/tmp/reports/a.xml\n/tmp/reports/b.xml\n/tmp/reports/c.xml\n"), nil)
	mChannel.On("Output", mock.Anything, "cat /tmp/reports/a.xml").Once().Return([]byte(cleanReport), nil)
	mChannel.On("Output", mock.Anything, "cat /tmp/reports/b.xml").Once().Return([]byte(failingReport), nil)
	mChannel.On("Output", mock.Anything, "cat /tmp/reports/c.xml").Once().Return([]byte(cleanReport), nil)

	scanner, err := report.NewScanner(report.ScannerConfig{Channel: mChannel})
	require.NoError(t, err)

	summary, err := scanner.ScanDir(context.Background(), "/tmp/reports/", "xml")
	require.NoError(t, err)

	assert.Equal(t, "FAILURE: Test `t1` of `s1`. Reason: boom.", summary)

	// Exactly one record, for the failing file, with one suite.
	records := scanner.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "/tmp/reports/b.xml", records[0].File)
	assert.Len(t, records[0].FailedTestsuites, 1)

	mChannel.AssertExpectations(t)
}

func TestScannerFirstFailure(t *testing.T) {
	tests := map[string]struct {
		path       string
		recordPath string
		mock       func(m *connmock.MockChannel, w *testWriteCloser)
		expSummary string
		expWritten bool
	}{
		"A trailing slash should dispatch to a directory scan.": {
			path:       "/tmp/reports/",
			recordPath: "/tmp/failures.yaml",
			mock: func(m *connmock.MockChannel, w *testWriteCloser) {
				m.On("Output", mock.Anything, "ls -d /tmp/reports/*.xml").Once().
					Return([]byte("/tmp/reports/a.xml\n"), nil)
				m.On("Output", mock.Anything, "cat /tmp/reports/a.xml").Once().Return([]byte(failingReport), nil)
				m.On("OpenWrite", "/tmp/failures.yaml").Once().Return(w, nil)
			},
			expSummary: "FAILURE: Test `t1` of `s1`. Reason: boom.",
			expWritten: true,
		},

		"A plain path should scan a single file.": {
			path:       "/tmp/report.xml",
			recordPath: "/tmp/failures.yaml",
			mock: func(m *connmock.MockChannel, w *testWriteCloser) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(failingReport), nil)
				m.On("OpenWrite", "/tmp/failures.yaml").Once().Return(w, nil)
			},
			expSummary: "FAILURE: Test `t1` of `s1`. Reason: boom.",
			expWritten: true,
		},

		"No failures means no record document write.": {
			path:       "/tmp/report.xml",
			recordPath: "/tmp/failures.yaml",
			mock: func(m *connmock.MockChannel, w *testWriteCloser) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(cleanReport), nil)
			},
			expSummary: "",
		},

		"A record write failure must not surface to the caller.": {
			path:       "/tmp/report.xml",
			recordPath: "/tmp/failures.yaml",
			mock: func(m *connmock.MockChannel, w *testWriteCloser) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(failingReport), nil)
				m.On("OpenWrite", "/tmp/failures.yaml").Once().Return(nil, fmt.Errorf("sftp refused"))
			},
			expSummary: "FAILURE: Test `t1` of `s1`. Reason: boom.",
		},

		"Without a configured record path nothing is written.": {
			path: "/tmp/report.xml",
			mock: func(m *connmock.MockChannel, w *testWriteCloser) {
				m.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(failingReport), nil)
			},
			expSummary: "FAILURE: Test `t1` of `s1`. Reason: boom.",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mChannel := &connmock.MockChannel{}
			w := &testWriteCloser{}
			test.mock(mChannel, w)

			scanner, err := report.NewScanner(report.ScannerConfig{
				Channel:    mChannel,
				RecordPath: test.recordPath,
			})
			require.NoError(t, err)

			summary, err := scanner.FirstFailure(context.Background(), test.path)
			require.NoError(t, err)
			assert.Equal(t, test.expSummary, summary)

			if test.expWritten {
				assert.True(t, w.closed)

				var written []model.ReportRecord
				require.NoError(t, yaml.Unmarshal(w.Bytes(), &written))
				require.Len(t, written, 1)
				assert.Equal(t, 1, written[0].NumOfFailures)
			}
			mChannel.AssertExpectations(t)
		})
	}
}
