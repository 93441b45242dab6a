package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"
)

// Config holds all applications configuration settings.
type Config struct {
	Global   Global   `yaml:"global"`
	Formulae []string `yaml:"formulae"`
}

// Global holds configuration settings that apply to all managed formulae.
type Global struct {
	Prefix   string `yaml:"prefix"`
	CacheDir string `yaml:"cacheDir"`
	Jobs     int    `yaml:"jobs"`
}

// LoadConfig reads the configuration from a reader into `cfg`.
func LoadConfig(r io.Reader, cfg *Config) error {
	if r == nil {
		return nil
	}
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadConfigFile reads the configuration a file into `cfg`.
func LoadConfigFile(name string, cfg *Config) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()
	return LoadConfig(file, cfg)
}

// prefix returns the expanded install prefix.
func (g Global) prefix() string {
	if g.Prefix == "" {
		return expandPath("~/.local")
	}
	return expandPath(g.Prefix)
}

// cacheDir returns the expanded download cache directory.
func (g Global) cacheDir() string {
	if g.CacheDir != "" {
		return expandPath(g.CacheDir)
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "formula")
	}
	return filepath.Join(os.TempDir(), "formula-cache")
}

func (g Global) jobs() int {
	if g.Jobs > 0 {
		return g.Jobs
	}
	return runtime.NumCPU()
}

// LoadFormulae loads every formula listed in the configuration. Entries may
// be glob patterns and are resolved relative to the directory of the
// configuration file.
func (c Config) LoadFormulae(baseDir string) ([]*Formula, error) {
	var formulae []*Formula
	seen := make(map[string]string)
	for _, pattern := range c.Formulae {
		pattern = expandPath(pattern)
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, categorize(ErrUsage, fmt.Errorf("invalid pattern %q: %w", pattern, err))
		}
		if len(matches) == 0 {
			return nil, newError(ErrUsage, "no formula matches %q", pattern)
		}
		for _, name := range matches {
			f, err := LoadFormulaFile(name)
			if err != nil {
				return nil, err
			}
			if other, ok := seen[f.Name]; ok {
				return nil, newError(ErrFormula, "formula %s defined twice: %s and %s", f.Name, other, name)
			}
			seen[f.Name] = name
			formulae = append(formulae, f)
		}
	}
	return formulae, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		path = filepath.Join("${HOME}", path[1:])
	}
	return os.ExpandEnv(path)
}

func renderTemplate(tmpl string, data any) (string, error) {
	tpl := template.New("")

	tpl = tpl.Funcs(template.FuncMap{
		"trimPrefix": func(prefix string, s string) string {
			return strings.TrimPrefix(s, prefix)
		},
	})

	tpl, err := tpl.Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var w bytes.Buffer
	if err := tpl.Execute(&w, data); err != nil {
		return "", err
	}

	return w.String(), nil
}
