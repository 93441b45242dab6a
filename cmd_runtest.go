package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cluttrdev/cli"
	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"go.cluttr.dev/formula/internal/metaerr"
)

func newTestCmd() *cli.Command {
	cfg := testCmd{}

	fs := flag.NewFlagSet("formula test", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "test",
		ShortHelp:  "Run the test commands of installed formulae.",
		ShortUsage: "formula test [OPTION]... NAME|FILE...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type testCmd struct {
	rootCmd

	verbose bool
}

func (c *testCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)

	fs.BoolVar(&c.verbose, "verbose", false, "Show the output of test commands.")
}

func (c *testCmd) Exec(ctx context.Context, args []string) (err error) {
	c.initLogging()
	defer func() {
		err = c.wrapError(err)
	}()

	if len(args) == 0 {
		return newError(ErrUsage, "missing formula name")
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	formulae, err := c.selectFormulae(cfg, args)
	if err != nil {
		return err
	}

	pipeline := c.newPipeline(cfg)
	if c.verbose {
		pipeline.Output = os.Stderr
	}

	for _, f := range formulae {
		// test against the prefix the formula was installed into
		receipt, err := ReadReceipt(pipeline.ReceiptDir, f.Name)
		if err != nil {
			return err
		}
		if receipt.Version != f.Version {
			slog.Warn("installed version differs from formula", "name", f.Name, "installed", receipt.Version, "formula", f.Version)
		}
		pipeline.Prefix = receipt.Prefix

		spinner, _ := pterm.DefaultSpinner.Start("Testing ", f.Name)
		if err := pipeline.Test(ctx, f, "", uuid.NewString()); err != nil {
			slog.With("name", f.Name, "kind", KindOf(err), "error", err).
				With(metaerr.GetMetadata(err)...).
				Error("formula test failed")
			spinner.Fail("Test of ", f.Name, " failed: ", err)
			return fmt.Errorf("test %s: %w", f.Name, err)
		}
		spinner.Success("Tested ", f.Name)
	}
	return nil
}
