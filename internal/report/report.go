// Package report turns structured test-report files sitting on a remote host
// into a single actionable failure message plus structured failure records.
package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/remoterun/internal/conn"
	"github.com/slok/remoterun/internal/log"
	"github.com/slok/remoterun/internal/model"
)

// Report kinds.
const (
	KindUnitTest = "unittest"
	KindValgrind = "valgrind"
)

// DefaultFetchTimeout bounds a single remote report read.
const DefaultFetchTimeout = 200 * time.Second

// Parser extracts failures from one raw report document. There is one
// implementation per report kind.
type Parser interface {
	// Parse returns the first-failure summary and the structured failure
	// record of a report document, both empty when the report has no
	// failures. A malformed document is an error.
	Parse(doc []byte) (summary string, record *model.ReportRecord, err error)
}

// NewParser returns the parser for a report kind.
func NewParser(kind string) (Parser, error) {
	switch kind {
	case KindUnitTest:
		return NewUnitTestParser(), nil
	case KindValgrind:
		return NewValgrindParser(), nil
	}
	return nil, fmt.Errorf("unknown report kind %q: %w", kind, model.ErrNotValid)
}

// ScannerConfig is the configuration for a report scanner.
type ScannerConfig struct {
	// Channel used for the read-only remote fetches and the record write.
	Channel conn.Channel
	// Parser for the report kind (default: unit test).
	Parser Parser
	// RecordPath is an optional remote path where the accumulated failure
	// records are written as a YAML document, best-effort.
	RecordPath string
	// FetchTimeout bounds each remote read (default: 200s).
	FetchTimeout time.Duration
	// Logger for logging (optional).
	Logger log.Logger
}

func (c *ScannerConfig) defaults() error {
	if c.Channel == nil {
		return fmt.Errorf("channel is required")
	}
	if c.Parser == nil {
		c.Parser = NewUnitTestParser()
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "report.Scanner"})
	return nil
}

// Scanner fetches report files over a channel and accumulates the structured
// failure records of everything it scanned.
type Scanner struct {
	ch           conn.Channel
	parser       Parser
	recordPath   string
	fetchTimeout time.Duration
	logger       log.Logger
	records      []model.ReportRecord
}

// NewScanner creates a new report scanner.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Scanner{
		ch:           cfg.Channel,
		parser:       cfg.Parser,
		recordPath:   cfg.RecordPath,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
	}, nil
}

// ScanFile fetches and parses a single report file. A missing or empty remote
// file is not an error, it just yields no failure summary.
func (s *Scanner) ScanFile(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	out, err := s.ch.Output(ctx, "cat "+path)
	if err != nil {
		return "", fmt.Errorf("could not fetch report %s: %w", path, err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		s.logger.Debugf("Report not found at %q", path)
		return "", nil
	}

	summary, record, err := s.parser.Parse(out)
	if err != nil {
		return "", fmt.Errorf("could not parse report %s: %w", path, err)
	}
	if record != nil {
		record.File = path
		s.records = append(s.records, *record)
	}

	return summary, nil
}

// ScanDir lists matching report files remotely and scans each of them. It
// returns the first non-empty failure summary; failure records keep
// accumulating for every scanned file.
func (s *Scanner) ScanDir(ctx context.Context, dirPath, ext string) (string, error) {
	lsCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	out, err := s.ch.Output(lsCtx, fmt.Sprintf("ls -d %s*.%s", dirPath, ext))
	if err != nil {
		return "", fmt.Errorf("could not list reports in %s: %w", dirPath, err)
	}

	first := ""
	for _, path := range strings.Split(string(out), "\n") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		summary, err := s.ScanFile(ctx, path)
		if err != nil {
			return "", err
		}
		if first == "" {
			first = summary
		}
	}

	return first, nil
}

// FirstFailure scans a path (a directory when it ends in "/", a single file
// otherwise) and returns the first failure summary found. After a successful
// scan the accumulated records are written out best-effort.
func (s *Scanner) FirstFailure(ctx context.Context, path string) (string, error) {
	var summary string
	var err error
	if strings.HasSuffix(path, "/") {
		summary, err = s.ScanDir(ctx, path, "xml")
	} else {
		summary, err = s.ScanFile(ctx, path)
	}
	if err != nil {
		return "", err
	}

	s.writeRecords()

	return summary, nil
}

// Records returns the failure records accumulated so far.
func (s *Scanner) Records() []model.ReportRecord {
	return s.records
}

// writeRecords persists the accumulated failure records as a YAML document on
// the remote host. Best-effort: every error ends up in the log, never in the
// caller.
func (s *Scanner) writeRecords() {
	if len(s.records) == 0 {
		s.logger.Debugf("No failure records to write")
		return
	}
	if s.recordPath == "" {
		return
	}

	w, err := s.ch.OpenWrite(s.recordPath)
	if err != nil {
		s.logger.Errorf("Could not open failure record file %s: %v", s.recordPath, err)
		return
	}
	defer w.Close()

	enc := yaml.NewEncoder(w)
	if err := enc.Encode(s.records); err != nil {
		s.logger.Errorf("Could not write failure records to %s: %v", s.recordPath, err)
		return
	}
	if err := enc.Close(); err != nil {
		s.logger.Errorf("Could not finish failure record document %s: %v", s.recordPath, err)
	}
}
