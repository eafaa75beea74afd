package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/remoterun/internal/printer"
	"github.com/slok/remoterun/internal/report"
)

type ScanCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	host           string
	path           string
	kind           string
	user           string
	keyPath        string
	connectTimeout time.Duration
	recordPath     string
	fetchTimeout   time.Duration
}

// NewScanCommand returns the scan command.
func NewScanCommand(rootCmd *RootCommand, app *kingpin.Application) *ScanCommand {
	c := &ScanCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("scan", "Scan a remote test report for failures.")
	c.Cmd.Arg("path", "Remote report path (directory when it ends in /).").Required().StringVar(&c.path)
	c.Cmd.Flag("host", "Target host, a name from the hosts file or user@addr:port.").Short('H').Required().StringVar(&c.host)
	c.Cmd.Flag("kind", "Report kind.").Default(report.KindUnitTest).EnumVar(&c.kind, report.KindUnitTest, report.KindValgrind)
	c.Cmd.Flag("user", "Default SSH user for hosts without one.").Default("root").StringVar(&c.user)

	defaultKey := filepath.Join(homedir.HomeDir(), ".ssh", "id_ed25519")
	c.Cmd.Flag("key", "Default SSH private key for hosts without one.").Default(defaultKey).StringVar(&c.keyPath)
	c.Cmd.Flag("connect-timeout", "SSH connection timeout.").Default("10s").DurationVar(&c.connectTimeout)
	c.Cmd.Flag("record", "Remote path where parsed failure records are written.").StringVar(&c.recordPath)
	c.Cmd.Flag("fetch-timeout", "Timeout for fetching each report.").DurationVar(&c.fetchTimeout)

	return c
}

func (c ScanCommand) Name() string { return c.Cmd.FullCommand() }

func (c ScanCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	hosts, err := resolveHosts(c.rootCmd, []string{c.host}, c.user, c.keyPath)
	if err != nil {
		return fmt.Errorf("could not resolve host: %w", err)
	}

	channels, closeChannels, err := dialHosts(ctx, c.rootCmd, hosts, c.connectTimeout)
	if err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}
	defer closeChannels()

	parser, err := report.NewParser(c.kind)
	if err != nil {
		return fmt.Errorf("could not create parser: %w", err)
	}

	scanner, err := report.NewScanner(report.ScannerConfig{
		Channel:      channels[0],
		Parser:       parser,
		RecordPath:   c.recordPath,
		FetchTimeout: c.fetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create scanner: %w", err)
	}

	summary, err := scanner.FirstFailure(ctx, c.path)
	if err != nil {
		return fmt.Errorf("could not scan report: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if summary == "" {
		return p.PrintMessage("No failures found.")
	}
	return p.PrintMessage(summary)
}
