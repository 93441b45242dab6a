package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/cluttrdev/cli"
	"github.com/pterm/pterm"

	"go.cluttr.dev/formula/internal/metaerr"
)

func newOutdatedCmd() *cli.Command {
	cfg := outdatedCmd{}

	fs := flag.NewFlagSet("formula outdated", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "outdated",
		ShortHelp:  "List formulae with a newer upstream release.",
		ShortUsage: "formula outdated [OPTION]... [NAME|FILE]...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type outdatedCmd struct {
	rootCmd

	all bool
}

func (c *outdatedCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)

	fs.BoolVar(&c.all, "all", false, "Also list formulae that are up to date.")
}

func (c *outdatedCmd) Exec(ctx context.Context, args []string) (err error) {
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

	resolver := Resolver{Client: newClient()}

	spinner, _ := pterm.DefaultSpinner.Start("Checking upstream versions")
	statuses, err := resolver.Outdated(ctx, formulae)
	if err != nil {
		slog.With("error", err).
			With(metaerr.GetMetadata(err)...).
			Error("failed to check upstream versions")
		spinner.Fail()
		return err
	}
	spinner.Success()

	data := pterm.TableData{{"Name", "Current", "Latest"}}
	for _, s := range statuses {
		if !s.Outdated && !c.all {
			continue
		}
		data = append(data, []string{s.Name, s.Current, s.Latest})
	}
	if len(data) == 1 {
		pterm.Info.Println("All formulae are up to date.")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
