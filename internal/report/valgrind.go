package report

import (
	"github.com/slok/remoterun/internal/model"
)

// ValgrindParser is the extension point for memory-checker reports. It does
// not extract failures yet.
type ValgrindParser struct{}

// NewValgrindParser creates a new memory-checker report parser.
func NewValgrindParser() *ValgrindParser {
	return &ValgrindParser{}
}

func (p *ValgrindParser) Parse(doc []byte) (string, *model.ReportRecord, error) {
	return "", nil, nil
}
