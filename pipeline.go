package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Pipeline drives a formula through fetch, verify, extract, install and
// test. Stages run strictly in order and the first failure aborts the rest.
type Pipeline struct {
	Fetcher   *Fetcher
	Signature *SignatureVerifier
	Runner    Runner

	// LookPath finds build and test dependencies, exec.LookPath by default.
	LookPath func(string) (string, error)

	Prefix string
	Jobs   int

	// WorkDir is the parent of build and test directories; empty means the
	// system temp dir.
	WorkDir    string
	LogDir     string
	ReceiptDir string

	// Output receives the output of external commands in addition to the
	// step log files.
	Output io.Writer

	RunTests bool

	// Stage observes stage transitions, e.g. to update a spinner.
	Stage func(name string)
}

// Run executes the whole pipeline for f.
func (p *Pipeline) Run(ctx context.Context, f *Formula) error {
	runID := uuid.NewString()
	log := slog.With("name", f.Name, "version", f.Version, "run", runID)
	start := time.Now()

	p.stage("fetch")
	archive, err := p.Fetch(ctx, f)
	if err != nil {
		return err
	}

	buildDir, err := os.MkdirTemp(p.WorkDir, fmt.Sprintf("%s-%s-", f.Name, runID))
	if err != nil {
		return stageError(ErrBuild, "create build dir", err)
	}
	defer func() {
		if err := os.RemoveAll(buildDir); err != nil {
			log.Error("failed to remove build directory", "dir", buildDir, "error", err)
		}
	}()

	p.stage("extract")
	src, err := ExtractArchive(archive, buildDir)
	if err != nil {
		return stageError(ErrBuild, "extract archive", err, "archive", archive)
	}
	log.Debug("extracted source", "dir", src)

	p.stage("install")
	if err := p.Install(ctx, f, src, runID); err != nil {
		return err
	}

	if p.ReceiptDir != "" {
		receipt := Receipt{
			Name:              f.Name,
			Version:           f.Version,
			URL:               f.URL,
			SHA256:            f.SHA256,
			Prefix:            p.Prefix,
			RunID:             runID,
			InstalledAt:       time.Now().UTC(),
			BuildDependencies: f.DependsOn.Of(PhaseBuild),
		}
		if err := WriteReceipt(p.ReceiptDir, receipt); err != nil {
			log.Warn("failed to write install receipt", "error", err)
		}
	}

	if p.RunTests {
		p.stage("test")
		if err := p.Test(ctx, f, src, runID); err != nil {
			return err
		}
	}

	log.Info("formula installed", "prefix", p.Prefix, "duration", time.Since(start))
	return nil
}

// Fetch resolves the source archive of f and verifies it. The returned path
// is only valid if the error is nil.
func (p *Pipeline) Fetch(ctx context.Context, f *Formula) (string, error) {
	fetcher := p.Fetcher
	if fetcher == nil {
		fetcher = &Fetcher{CacheDir: filepath.Join(os.TempDir(), "formula-cache")}
	}

	archive, err := fetcher.Fetch(ctx, f.URL, f.SHA256)
	if err != nil {
		return "", err
	}

	p.stage("verify")
	if err := Verify(archive, f.SHA256); err != nil {
		_ = os.Remove(archive)
		return "", err
	}

	if f.Signature != nil {
		verifier := p.Signature
		if verifier == nil {
			verifier = &SignatureVerifier{Client: fetcher.Client}
		}
		if err := verifier.Verify(ctx, archive, *f.Signature); err != nil {
			return "", err
		}
	}

	return archive, nil
}

// Install runs the install commands of f inside the extracted source
// directory src.
func (p *Pipeline) Install(ctx context.Context, f *Formula, src string, runID string) error {
	if err := checkDependencies(f.DependsOn.Of(PhaseBuild), p.lookPath()); err != nil {
		return stageError(ErrBuild, "check build dependencies", err)
	}

	bctx := newBuildContext(f, p.Prefix, src, p.Jobs)
	if err := p.steps(f, runID).run(ctx, "install", f.Install, bctx, src); err != nil {
		return stageError(ErrBuild, "install", err)
	}
	return nil
}

// Test runs the test commands of f in an ephemeral working directory which
// is removed on every exit path. buildpath may be empty when the source tree
// is no longer available.
func (p *Pipeline) Test(ctx context.Context, f *Formula, buildpath string, runID string) error {
	log := slog.With("name", f.Name, "run", runID)
	if len(f.Test) == 0 {
		log.Info("formula has no test commands")
		return nil
	}

	if err := checkDependencies(f.DependsOn.Of(PhaseTest), p.lookPath()); err != nil {
		return stageError(ErrTest, "check test dependencies", err)
	}

	dir, err := os.MkdirTemp(p.WorkDir, fmt.Sprintf("%s-test-", f.Name))
	if err != nil {
		return stageError(ErrTest, "create test dir", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Error("failed to remove test directory", "dir", dir, "error", err)
		}
	}()

	bctx := newBuildContext(f, p.Prefix, buildpath, p.Jobs)
	if err := p.steps(f, runID).run(ctx, "test", f.Test, bctx, dir); err != nil {
		return stageError(ErrTest, "test", err)
	}
	return nil
}

func (p *Pipeline) steps(f *Formula, runID string) *stepRunner {
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	var logDir string
	if p.LogDir != "" {
		logDir = filepath.Join(p.LogDir, f.Name, runID)
	}
	return &stepRunner{
		runner: runner,
		logDir: logDir,
		output: p.Output,
	}
}

func (p *Pipeline) lookPath() func(string) (string, error) {
	if p.LookPath != nil {
		return p.LookPath
	}
	return exec.LookPath
}

func (p *Pipeline) stage(name string) {
	if p.Stage != nil {
		p.Stage(name)
	}
}
