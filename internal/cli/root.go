package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/urlmon/internal/config"
	customhttp "github.com/BenjaminSRussell/urlmon/internal/http"
	"github.com/BenjaminSRussell/urlmon/internal/logger"
	"github.com/BenjaminSRussell/urlmon/internal/monitor"
	"github.com/BenjaminSRussell/urlmon/internal/storage"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// Exit codes
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// exitError carries the process exit code for a failed command
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func usageError(cmd *cobra.Command) error {
	return &exitError{code: ExitUsage, msg: "Usage: " + cmd.UseLine()}
}

func failure(format string, args ...any) error {
	return &exitError{code: ExitError, msg: fmt.Sprintf(format, args...)}
}

// Run executes the command line in args and returns the exit code
func Run(args []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), args, stdout, stderr)
}

// RunContext is Run with a caller-controlled context
func RunContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, ee.msg)
		return ee.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitError
}

// monitorFlags are the root flags that override configuration values
type monitorFlags struct {
	configPath      string
	timeout         time.Duration
	exchangeTimeout time.Duration
	maxHops         int
	follow          string
	tlsProfile      string
	maxRetries      int
	respectRobots   bool
	dataDir         string
	sqlitePath      string
	logLevel        string
	logFormat       string
	logFile         string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &monitorFlags{}

	cmd := &cobra.Command{
		Use:   "urlmon [flags] <urls_file>",
		Short: "Check that a list of URLs is alive",
		Long: `urlmon reads a newline-delimited list of URLs and issues one raw HTTP/1.0
GET per URL over TCP or TLS, reporting the status line and following a
redirect or the first referenced image.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError(cmd)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, flags, args[0], stdout, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(c)
	})

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	f.DurationVar(&flags.timeout, "timeout", customhttp.DefaultConnectTimeout, "Connect and idle read timeout")
	f.DurationVar(&flags.exchangeTimeout, "exchange-timeout", customhttp.DefaultExchangeTimeout, "Total time allowed for one response")
	f.IntVar(&flags.maxHops, "max-hops", 5, "Maximum follow steps from an input URL")
	f.StringVar(&flags.follow, "follow", types.FollowFirst, "Follow mode: first/all/none")
	f.StringVar(&flags.tlsProfile, "tls-profile", customhttp.DefaultTLSProfile.Name, "TLS ClientHello profile: "+strings.Join(customhttp.TLSProfileNames(), "/"))
	f.IntVar(&flags.maxRetries, "max-retries", 0, "Retries for network errors")
	f.BoolVar(&flags.respectRobots, "respect-robots", false, "Skip URLs disallowed by robots.txt")
	f.StringVar(&flags.dataDir, "data-dir", "", "Directory for the JSONL visit log")
	f.StringVar(&flags.sqlitePath, "sqlite", "", "SQLite database for visits")
	f.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug/info/warn/error")
	f.StringVar(&flags.logFormat, "log-format", "console", "Log format: console/json")
	f.StringVar(&flags.logFile, "log-file", "", "Also write JSON logs to this rotating file")

	cmd.AddCommand(newExportCmd(stdout))
	cmd.AddCommand(newStatsCmd(stdout))
	cmd.AddCommand(newConfigCmd(stdout))

	return cmd
}

// loadConfig builds the effective configuration: defaults, then the
// optional file, then flags that were set explicitly
func loadConfig(cmd *cobra.Command, flags *monitorFlags) (types.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}

	fs := cmd.Flags()
	if fs.Changed("timeout") {
		cfg.ConnectTimeout = flags.timeout
	}
	if fs.Changed("exchange-timeout") {
		cfg.ExchangeTimeout = flags.exchangeTimeout
	}
	if fs.Changed("max-hops") {
		cfg.MaxHops = flags.maxHops
	}
	if fs.Changed("follow") {
		cfg.FollowMode = strings.ToLower(flags.follow)
	}
	if fs.Changed("tls-profile") {
		cfg.TLSProfile = strings.ToLower(flags.tlsProfile)
	}
	if fs.Changed("max-retries") {
		cfg.MaxRetries = flags.maxRetries
	}
	if fs.Changed("respect-robots") {
		cfg.RespectRobots = flags.respectRobots
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if fs.Changed("sqlite") {
		cfg.SQLitePath = flags.sqlitePath
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = strings.ToLower(flags.logLevel)
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = strings.ToLower(flags.logFormat)
	}
	if fs.Changed("log-file") {
		cfg.Log.File = flags.logFile
	}

	return cfg, config.Validate(cfg)
}

func runMonitor(cmd *cobra.Command, flags *monitorFlags, path string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return failure("Error loading config: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return failure("Error reading file: %v", err)
	}
	defer file.Close()

	log, err := logger.FromConfig(cfg.Log, stderr)
	if err != nil {
		return failure("Error configuring logger: %v", err)
	}
	defer log.Close()
	zl := log.Zerolog()

	recorders, err := openRecorders(cfg)
	if err != nil {
		return failure("Error opening storage: %v", err)
	}
	defer func() {
		for _, r := range recorders {
			if err := r.Close(); err != nil {
				zl.Warn().Err(err).Msg("failed to close storage")
			}
		}
	}()

	m, err := monitor.New(cfg, stdout, zl, recorders...)
	if err != nil {
		return failure("Error: %v", err)
	}

	zl.Debug().
		Str("file", path).
		Str("follow", cfg.FollowMode).
		Str("tls_profile", cfg.TLSProfile).
		Dur("timeout", cfg.ConnectTimeout).
		Msg("starting batch")

	if _, err := m.RunBatch(cmd.Context(), file); err != nil {
		if errors.Is(err, context.Canceled) {
			return failure("Interrupted")
		}
		return failure("Error reading file: %v", err)
	}

	return nil
}

func openRecorders(cfg types.Config) ([]storage.Recorder, error) {
	var recorders []storage.Recorder

	if cfg.DataDir != "" {
		store, err := storage.New(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		if err := store.SaveConfig(cfg); err != nil {
			store.Close()
			return nil, err
		}
		recorders = append(recorders, store)
	}

	if cfg.SQLitePath != "" {
		db, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			for _, r := range recorders {
				r.Close()
			}
			return nil, err
		}
		recorders = append(recorders, db)
	}

	return recorders, nil
}
