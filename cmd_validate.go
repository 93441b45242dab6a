package main

import (
	"context"
	"flag"

	"github.com/cluttrdev/cli"
	"github.com/pterm/pterm"
)

func newValidateCmd() *cli.Command {
	cfg := validateCmd{}

	fs := flag.NewFlagSet("formula validate", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "validate",
		ShortHelp:  "Check formula files for errors.",
		ShortUsage: "formula validate [OPTION]... FILE...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type validateCmd struct {
	rootCmd
}

func (c *validateCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)
}

func (c *validateCmd) Exec(ctx context.Context, args []string) (err error) {
	c.initLogging()
	defer func() {
		err = c.wrapError(err)
	}()

	if len(args) == 0 {
		return newError(ErrUsage, "missing formula file")
	}

	var failed []string
	for _, name := range args {
		f, err := LoadFormulaFile(name)
		if err != nil {
			pterm.Error.Println(err)
			failed = append(failed, name)
			continue
		}
		pterm.Success.Printf("%s: %s %s\n", name, f.Name, f.Version)
	}
	if len(failed) > 0 {
		return newError(ErrFormula, "invalid formulae: %v", failed)
	}
	return nil
}
