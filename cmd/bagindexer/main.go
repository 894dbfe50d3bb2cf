package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	raven "github.com/getsentry/raven-go"

	"github.com/mjordan/bagit-indexer/config"
	"github.com/mjordan/bagit-indexer/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// LogOutput receives the log. It defaults to the stderr given to Run.
	LogOutput io.Writer
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("bagindexer"),
		kong.Description("Validate BagIt bags and index them for search"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'bagindexer --help' to see available commands")
	}
	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if cli.Config != "" {
		cfg, err = config.Load(cli.Config)
		if err != nil {
			return err
		}
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogJSON {
		cfg.Log.JSON = true
	}
	logOut := m.LogOutput
	if logOut == nil {
		logOut = stderr
	}
	err = logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Dir:    cfg.Log.Dir,
		Output: logOut,
	})
	if err != nil {
		return err
	}
	if cfg.Sentry.DSN != "" {
		if err := raven.SetDSN(cfg.Sentry.DSN); err != nil {
			return err
		}
	}
	deps.Config = cfg

	return kongCtx.Run()
}
