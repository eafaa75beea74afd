package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	apprun "github.com/slok/remoterun/internal/app/run"
	"github.com/slok/remoterun/internal/storage"
	"github.com/slok/remoterun/internal/storage/sqlite"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	hosts          []string
	command        []string
	user           string
	keyPath        string
	connectTimeout time.Duration
	cwd            string
	label          string
	timeout        time.Duration
	waitTimeout    time.Duration
	quiet          bool
	noCheck        bool
	stdin          bool
	reportPath     string
	recordPath     string
	noHistory      bool
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a command on remote hosts.")
	c.Cmd.Arg("command", "Command to run (use -- before command).").Required().StringsVar(&c.command)
	c.Cmd.Flag("host", "Target host, a name from the hosts file or user@addr:port. Can be repeated.").Short('H').Required().StringsVar(&c.hosts)
	c.Cmd.Flag("user", "Default SSH user for hosts without one.").Default("root").StringVar(&c.user)

	defaultKey := filepath.Join(homedir.HomeDir(), ".ssh", "id_ed25519")
	c.Cmd.Flag("key", "Default SSH private key for hosts without one.").Default(defaultKey).StringVar(&c.keyPath)
	c.Cmd.Flag("connect-timeout", "SSH connection timeout.").Default("10s").DurationVar(&c.connectTimeout)

	c.Cmd.Flag("cwd", "Remote working directory.").StringVar(&c.cwd)
	c.Cmd.Flag("label", "Label describing what the command does.").StringVar(&c.label)
	c.Cmd.Flag("timeout", "Timeout for issuing the command on each host.").DurationVar(&c.timeout)
	c.Cmd.Flag("wait-timeout", "Polling budget of the batch wait, every host is still collected after it.").DurationVar(&c.waitTimeout)
	c.Cmd.Flag("quiet", "Do not log remote output.").BoolVar(&c.quiet)
	c.Cmd.Flag("no-check", "Do not treat non-zero exits as errors.").BoolVar(&c.noCheck)
	c.Cmd.Flag("stdin", "Feed local standard input to every remote process.").BoolVar(&c.stdin)
	c.Cmd.Flag("report", "Remote unit test report path used to diagnose failures (directory when it ends in /).").StringVar(&c.reportPath)
	c.Cmd.Flag("record", "Remote path where parsed failure records are written.").StringVar(&c.recordPath)
	c.Cmd.Flag("no-history", "Do not store the runs in the history database.").BoolVar(&c.noHistory)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	hosts, err := resolveHosts(c.rootCmd, c.hosts, c.user, c.keyPath)
	if err != nil {
		return fmt.Errorf("could not resolve hosts: %w", err)
	}

	channels, closeChannels, err := dialHosts(ctx, c.rootCmd, hosts, c.connectTimeout)
	if err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}
	defer closeChannels()

	// Initialize storage (SQLite).
	var repo storage.Repository
	if !c.noHistory {
		sqliteRepo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: c.rootCmd.DBPath,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("could not create repository: %w", err)
		}
		defer sqliteRepo.Close()
		repo = sqliteRepo
	}

	svc, err := apprun.NewService(apprun.ServiceConfig{
		Channels:   channels,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	var stdin []byte
	if c.stdin {
		stdin, err = io.ReadAll(c.rootCmd.Stdin)
		if err != nil {
			return fmt.Errorf("could not read standard input: %w", err)
		}
	}

	records, err := svc.Run(ctx, apprun.Request{
		Command:       c.command,
		Cwd:           c.cwd,
		Label:         c.label,
		Timeout:       c.timeout,
		WaitTimeout:   c.waitTimeout,
		NoCheckStatus: c.noCheck,
		Quiet:         c.quiet,
		Stdin:         stdin,
		ReportPath:    c.reportPath,
		RecordPath:    c.recordPath,
	})
	for _, r := range records {
		logger.Infof("Run %s on %s finished: %s (exit %d)", r.ID, r.Hostname, r.Status, r.ExitCode)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	return nil
}
