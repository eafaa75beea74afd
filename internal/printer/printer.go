package printer

import "github.com/slok/remoterun/internal/model"

// Printer knows how to print run information in different formats.
type Printer interface {
	PrintRunList(runs []model.RunRecord) error
	PrintRun(run model.RunRecord) error
	PrintMessage(msg string) error
}
