package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cluttrdev/cli"
	"github.com/pterm/pterm"

	"go.cluttr.dev/formula/internal/metaerr"
)

func newInstallCmd() *cli.Command {
	cfg := installCmd{}

	fs := flag.NewFlagSet("formula install", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "install",
		ShortHelp:  "Fetch, verify, build and install formulae.",
		ShortUsage: "formula install [OPTION]... [NAME|FILE]...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type installCmd struct {
	rootCmd

	test    bool
	verbose bool
	prefix  string
}

func (c *installCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)

	fs.BoolVar(&c.test, "test", false, "Run the test commands after installing.")
	fs.BoolVar(&c.verbose, "verbose", false, "Show the output of build commands.")
	fs.StringVar(&c.prefix, "prefix", "", "Override the install prefix.")
}

func (c *installCmd) Exec(ctx context.Context, args []string) (err error) {
	c.initLogging()
	defer func() {
		err = c.wrapError(err)
	}()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if c.prefix != "" {
		cfg.Global.Prefix = c.prefix
	}

	formulae, err := c.selectFormulae(cfg, args)
	if err != nil {
		return err
	}

	pipeline := c.newPipeline(cfg)
	pipeline.RunTests = c.test
	if c.verbose {
		pipeline.Output = os.Stderr
	}

	// formulae are installed one after another, a later formula may build
	// with the tools an earlier one installed
	for _, f := range formulae {
		if err := c.install(ctx, pipeline, f); err != nil {
			return err
		}
	}
	return nil
}

func (c *installCmd) install(ctx context.Context, pipeline *Pipeline, f *Formula) error {
	var spinner *pterm.SpinnerPrinter
	if !c.verbose {
		spinner, _ = pterm.DefaultSpinner.Start("Installing ", f.Name)
		pipeline.Stage = func(stage string) {
			spinner.UpdateText(fmt.Sprintf("Installing %s (%s)", f.Name, stage))
		}
	}

	if err := pipeline.Run(ctx, f); err != nil {
		slog.With("name", f.Name, "kind", KindOf(err), "error", err).
			With(metaerr.GetMetadata(err)...).
			Error("failed to install formula")
		if spinner != nil {
			spinner.Fail("Failed to install ", f.Name, ": ", err)
		}
		return fmt.Errorf("install %s: %w", f.Name, err)
	}

	if spinner != nil {
		spinner.Success("Installed ", f.Name, " ", f.Version)
	}
	return nil
}
