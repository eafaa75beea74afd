package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/remoterun/internal/model"
	"github.com/slok/remoterun/internal/printer"
	"github.com/slok/remoterun/internal/storage"
	"github.com/slok/remoterun/internal/storage/sqlite"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id           string
	hostFilter   string
	statusFilter string
	limit        int
	format       string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List past runs.")
	c.Cmd.Arg("id", "Show a single run by ID.").StringVar(&c.id)
	c.Cmd.Flag("host", "Filter by host.").StringVar(&c.hostFilter)
	c.Cmd.Flag("status", "Filter by status (success, failed, crashed, connection-lost).").StringVar(&c.statusFilter)
	c.Cmd.Flag("limit", "Maximum number of runs to show.").Default("50").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter model.RunStatus
	if c.statusFilter != "" {
		status := model.RunStatus(strings.ToLower(c.statusFilter))
		switch status {
		case model.RunStatusSuccess, model.RunStatusFailed, model.RunStatusCrashed, model.RunStatusLost:
			statusFilter = status
		default:
			return fmt.Errorf("invalid status filter: %s (must be: success, failed, crashed, connection-lost)", c.statusFilter)
		}
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	// Select output format.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if c.id != "" {
		run, err := repo.GetRun(ctx, c.id)
		if err != nil {
			return fmt.Errorf("could not get run: %w", err)
		}
		return p.PrintRun(*run)
	}

	runs, err := repo.ListRuns(ctx, storage.RunFilter{
		Hostname: c.hostFilter,
		Status:   statusFilter,
		Limit:    c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list runs: %w", err)
	}

	if err := p.PrintRunList(runs); err != nil {
		return fmt.Errorf("could not print runs: %w", err)
	}

	return nil
}
