package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/cluttrdev/cli"
	"github.com/pterm/pterm"

	"go.cluttr.dev/formula/internal/metaerr"
)

func newLockCmd() *cli.Command {
	cfg := lockCommand{}

	fs := flag.NewFlagSet("formula lock", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "lock",
		ShortHelp:  "Record the observed checksums of all source archives.",
		ShortUsage: "formula lock [OPTION]...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type lockCommand struct {
	rootCmd
}

func (c *lockCommand) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)
}

func (c *lockCommand) Exec(ctx context.Context, args []string) (err error) {
	c.initLogging()
	defer func() {
		err = c.wrapError(err)
	}()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	formulae, err := c.selectFormulae(cfg, nil)
	if err != nil {
		return err
	}

	pipeline := c.newPipeline(cfg)
	resolver := Resolver{
		Client:  pipeline.Fetcher.Client,
		Fetcher: pipeline.Fetcher,
	}

	spinner, _ := pterm.DefaultSpinner.Start("Fetching source archives")
	lock, err := resolver.Lock(ctx, formulae)
	if err != nil {
		slog.With("error", err).
			With(metaerr.GetMetadata(err)...).
			Error("failed to lock formulae")
		spinner.Fail()
		return err
	}
	spinner.Success()

	lockfile := replaceFileExt(c.ConfigFile, ".lock")
	if prev, err := readLockFile(lockfile); err == nil && prev.Digest == lock.Digest {
		slog.Info("lock file is up to date", "file", lockfile)
		return nil
	}
	return writeLockFile(lockfile, lock)
}
