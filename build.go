package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.cluttr.dev/formula/internal/metaerr"
)

// stdCMakeArgsToken expands into the standard CMake arguments of the host.
const stdCMakeArgsToken = "@std_cmake_args"

// Cmd is a single external command invocation.
type Cmd struct {
	Args   []string
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) error
}

// ExecRunner runs commands as child processes. The environment of the
// current process is inherited and extended with Cmd.Env.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Cmd) error {
	if len(c.Args) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd.Run()
}

// BuildContext holds the values command arguments may refer to.
type BuildContext struct {
	Name          string
	Version       string
	Prefix        string
	Bin           string
	Lib           string
	Include       string
	Share         string
	Buildpath     string
	Jobs          int
	Deparallelize bool
}

func newBuildContext(f *Formula, prefix string, buildpath string, jobs int) BuildContext {
	if jobs < 1 || f.Deparallelize {
		jobs = 1
	}
	return BuildContext{
		Name:          f.Name,
		Version:       f.Version,
		Prefix:        prefix,
		Bin:           filepath.Join(prefix, "bin"),
		Lib:           filepath.Join(prefix, "lib"),
		Include:       filepath.Join(prefix, "include"),
		Share:         filepath.Join(prefix, "share"),
		Buildpath:     buildpath,
		Jobs:          jobs,
		Deparallelize: f.Deparallelize,
	}
}

// StdCMakeArgs returns the arguments every CMake based build is configured
// with.
func (b BuildContext) StdCMakeArgs() []string {
	return []string{
		"-DCMAKE_INSTALL_PREFIX=" + b.Prefix,
		"-DCMAKE_INSTALL_LIBDIR=lib",
		"-DCMAKE_BUILD_TYPE=Release",
		"-DCMAKE_FIND_FRAMEWORK=LAST",
		"-DCMAKE_VERBOSE_MAKEFILE=ON",
		"-Wno-dev",
	}
}

// Env returns the environment additions for build and test commands.
func (b BuildContext) Env() []string {
	jobs := strconv.Itoa(b.Jobs)
	return []string{
		"MAKEFLAGS=-j" + jobs,
		"CMAKE_BUILD_PARALLEL_LEVEL=" + jobs,
		"FORMULA_PREFIX=" + b.Prefix,
		"FORMULA_BUILDPATH=" + b.Buildpath,
	}
}

// expandCommand renders the arguments of c against the build context.
func expandCommand(c Command, b BuildContext) ([]string, error) {
	args := make([]string, 0, len(c))
	for _, arg := range c {
		if arg == stdCMakeArgsToken {
			args = append(args, b.StdCMakeArgs()...)
			continue
		}
		s, err := renderTemplate(arg, b)
		if err != nil {
			return nil, fmt.Errorf("render argument %q: %w", arg, err)
		}
		args = append(args, s)
	}
	return args, nil
}

// checkDependencies makes sure every named tool is available.
func checkDependencies(names []string, lookPath func(string) (string, error)) error {
	var missing []string
	for _, name := range names {
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return metaerr.WithMetadata(fmt.Errorf("missing dependencies: %v", missing), "missing", missing)
	}
	return nil
}

// stepRunner runs the commands of one phase in order and stops at the first
// failure.
type stepRunner struct {
	runner Runner
	logDir string
	output io.Writer
}

func (s *stepRunner) run(ctx context.Context, phase string, steps []Command, bctx BuildContext, dir string) error {
	for i, step := range steps {
		args, err := expandCommand(step, bctx)
		if err != nil {
			return metaerr.WithMetadata(err, "step", i+1)
		}

		w, logFile, err := s.stepOutput(phase, i, args)
		if err != nil {
			return err
		}

		slog.Debug("running command", "phase", phase, "step", i+1, "args", args, "dir", dir)
		err = s.runner.Run(ctx, Cmd{
			Args:   args,
			Dir:    dir,
			Env:    bctx.Env(),
			Stdout: w,
			Stderr: w,
		})
		if logFile != nil {
			_ = logFile.Close()
		}
		if err != nil {
			kv := []any{"step", i + 1, "command", Command(args).String()}
			if logFile != nil {
				kv = append(kv, "log", logFile.Name())
			}
			return metaerr.WithMetadata(fmt.Errorf("%s failed: %w", Command(args).String(), err), kv...)
		}
	}
	return nil
}

func (s *stepRunner) stepOutput(phase string, i int, args []string) (io.Writer, *os.File, error) {
	var writers []io.Writer
	if s.output != nil {
		writers = append(writers, s.output)
	}

	var logFile *os.File
	if s.logDir != "" {
		if err := os.MkdirAll(s.logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := fmt.Sprintf("%s.%02d.%s.log", phase, i+1, filepath.Base(args[0]))
		f, err := os.Create(filepath.Join(s.logDir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("create log file: %w", err)
		}
		logFile = f
		writers = append(writers, f)
	}

	if len(writers) == 0 {
		return io.Discard, nil, nil
	}
	return io.MultiWriter(writers...), logFile, nil
}
