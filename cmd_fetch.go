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

func newFetchCmd() *cli.Command {
	cfg := fetchCmd{}

	fs := flag.NewFlagSet("formula fetch", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "fetch",
		ShortHelp:  "Download and verify source archives.",
		ShortUsage: "formula fetch [OPTION]... [NAME|FILE]...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type fetchCmd struct {
	rootCmd

	quiet bool
}

func (c *fetchCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)

	fs.BoolVar(&c.quiet, "quiet", false, "Do not show download progress.")
}

func (c *fetchCmd) Exec(ctx context.Context, args []string) (err error) {
	c.initLogging()
	defer func() {
		err = c.wrapError(err)
	}()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	formulae, err := c.selectFormulae(cfg, args)
	if err != nil {
		return err
	}

	pipeline := c.newPipeline(cfg)
	if !c.quiet {
		pipeline.Fetcher.Progress = os.Stderr
	}

	for _, f := range formulae {
		path, err := pipeline.Fetch(ctx, f)
		if err != nil {
			slog.With("name", f.Name, "kind", KindOf(err), "error", err).
				With(metaerr.GetMetadata(err)...).
				Error("failed to fetch formula")
			return fmt.Errorf("fetch %s: %w", f.Name, err)
		}
		pterm.Success.Println(f.Name, path)
	}
	return nil
}
