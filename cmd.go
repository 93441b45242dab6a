package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cluttrdev/cli"
)

// execute configures the root command and then runs it on args with the
// given context.
func execute(ctx context.Context, args []string) error {
	cmd := configure()
	opts := []cli.ParseOption{
		cli.WithEnvVarPrefix("FORMULA"),
	}

	if err := cmd.Parse(args, opts...); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return categorize(ErrUsage, fmt.Errorf("parse arguments: %w", err))
	}

	return cmd.Run(ctx)
}

// configure returns the root command.
func configure() *cli.Command {
	var cfg rootCmd

	fs := flag.NewFlagSet("formula", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "formula",
		ShortHelp:  "Fetch, verify, build, install and test packages from formulae.",
		ShortUsage: "formula [COMMAND] [OPTION]... [ARG]...",
		Subcommands: []*cli.Command{
			cli.DefaultVersionCommand(os.Stdout),
			newInstallCmd(),
			newTestCmd(),
			newFetchCmd(),
			newValidateCmd(),
			newLockCmd(),
			newOutdatedCmd(),
		},
		Flags: fs,
		Exec:  cfg.Exec,
	}
}

func initLogging(w io.Writer, level string, format string) {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := slog.HandlerOptions{
		Level: lvl,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, &opts)
	case "json":
		handler = slog.NewJSONHandler(w, &opts)
	default:
		handler = slog.NewTextHandler(w, &opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

type rootCmd struct {
	ConfigFile string

	logFile   *os.File
	logLevel  string
	logFormat string
	debug     bool

	// runner overrides the command runner of the pipeline.
	runner Runner
}

func (c *rootCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", ".formula.yaml", "The configuration file.")

	fs.StringVar(&c.logLevel, "log-level", "info", "The log level.")
	fs.StringVar(&c.logFormat, "log-format", "text", "The log format ('text' or 'json').")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug mode.")
}

func (c *rootCmd) Exec(ctx context.Context, args []string) error {
	return flag.ErrHelp
}

func (c *rootCmd) initLogging() {
	if stateDir, err := userStateDir(); err == nil {
		if err := os.MkdirAll(stateDir, 0o755); err == nil {
			c.logFile, _ = os.OpenFile(filepath.Join(stateDir, "formula.log"), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		}
	}
	if c.logFile == nil {
		c.logFile = os.Stderr
	}

	level := c.logLevel
	if c.debug {
		level = "debug"
	}
	initLogging(c.logFile, level, c.logFormat)
}

// wrapError points the user at the log file for details.
func (c *rootCmd) wrapError(err error) error {
	if err != nil && c.logFile != nil && c.logFile != os.Stderr {
		return fmt.Errorf("%w\nSee %s for details", err, c.logFile.Name())
	}
	return err
}

// loadConfig reads the configuration file. A missing default configuration
// file is not an error.
func (c *rootCmd) loadConfig() (Config, error) {
	var cfg Config
	if err := LoadConfigFile(c.ConfigFile, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) && c.ConfigFile == ".formula.yaml" {
			return cfg, nil
		}
		return cfg, categorize(ErrUsage, fmt.Errorf("load configuration: %w", err))
	}
	return cfg, nil
}

// selectFormulae returns the formulae named by args. An argument is either
// the name of a configured formula or the path of a formula file. Without
// arguments all configured formulae are returned.
func (c *rootCmd) selectFormulae(cfg Config, args []string) ([]*Formula, error) {
	configured, err := cfg.LoadFormulae(filepath.Dir(c.ConfigFile))
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		if len(configured) == 0 {
			return nil, newError(ErrUsage, "no formulae configured")
		}
		return configured, nil
	}

	var formulae []*Formula
	for _, arg := range args {
		if isFormulaFile(arg) {
			f, err := LoadFormulaFile(arg)
			if err != nil {
				return nil, err
			}
			formulae = append(formulae, f)
			continue
		}
		index := slices.IndexFunc(configured, func(f *Formula) bool {
			return f.Name == arg
		})
		if index == -1 {
			return nil, newError(ErrUsage, "formula %s not found", arg)
		}
		formulae = append(formulae, configured[index])
	}
	return formulae, nil
}

func isFormulaFile(arg string) bool {
	ext := strings.ToLower(filepath.Ext(arg))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	_, err := os.Stat(arg)
	return err == nil
}

func userStateDir() (string, error) {
	xdgStateHome, ok := os.LookupEnv("XDG_STATE_HOME")
	if !ok || xdgStateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		xdgStateHome = filepath.Join(home, ".local", "state")
	}

	return xdgStateHome, nil
}

// formulaStateDir holds build logs and install receipts.
func formulaStateDir() string {
	dir, err := userStateDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "formula-state")
	}
	return filepath.Join(dir, "formula")
}

func (c *rootCmd) newPipeline(cfg Config) *Pipeline {
	client := newClient()
	stateDir := formulaStateDir()
	var runner Runner = ExecRunner{}
	if c.runner != nil {
		runner = c.runner
	}
	return &Pipeline{
		Fetcher: &Fetcher{
			Client:   client,
			CacheDir: cfg.Global.cacheDir(),
		},
		Signature: &SignatureVerifier{
			Client: client,
		},
		Runner:     runner,
		Prefix:     cfg.Global.prefix(),
		Jobs:       cfg.Global.jobs(),
		LogDir:     filepath.Join(stateDir, "logs"),
		ReceiptDir: filepath.Join(stateDir, "receipts"),
	}
}
