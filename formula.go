package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
)

// Formula describes how to fetch, verify, build, install and test a piece
// of software from a versioned source archive.
type Formula struct {
	Name          string       `yaml:"name"`
	Desc          string       `yaml:"desc"`
	Homepage      string       `yaml:"homepage"`
	URL           string       `yaml:"url"`
	Version       string       `yaml:"version"`
	SHA256        string       `yaml:"sha256"`
	DependsOn     Dependencies `yaml:"depends_on"`
	Deparallelize bool         `yaml:"deparallelize"`
	Install       []Command    `yaml:"install"`
	Test          []Command    `yaml:"test"`
	Signature     *Signature   `yaml:"signature"`
	Livecheck     Livecheck    `yaml:"livecheck"`

	// Path is the file the formula was loaded from, if any.
	Path string `yaml:"-"`
}

// Phase names the part of the lifecycle a dependency is needed for.
type Phase string

const (
	PhaseBuild    Phase = "build"
	PhaseTest     Phase = "test"
	PhaseRun      Phase = "run"
	PhaseOptional Phase = "optional"
)

var phases = []Phase{PhaseBuild, PhaseTest, PhaseRun, PhaseOptional}

type Dependency struct {
	Name  string
	Phase Phase
}

// Dependencies is written either as a mapping of name to phase or as a list
// of names (which default to the run phase) and single-entry mappings.
type Dependencies []Dependency

// Of returns the names of the dependencies needed in the given phase.
func (d Dependencies) Of(phase Phase) []string {
	var names []string
	for _, dep := range d {
		if dep.Phase == phase {
			names = append(names, dep.Name)
		}
	}
	return names
}

// Command is an external command and its arguments. It is written either
// as a single string, split on whitespace, or as a list of arguments.
type Command []string

func (c Command) String() string {
	return strings.Join(c, " ")
}

// splitCommand splits a command line on whitespace. Template actions are
// kept whole, `-DPREFIX={{ .Prefix }}` is a single argument.
func splitCommand(s string) Command {
	var (
		args    Command
		arg     strings.Builder
		depth   int
		pending bool
	)
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			depth++
			arg.WriteString("{{")
			i++
			pending = true
		case depth > 0 && strings.HasPrefix(s[i:], "}}"):
			depth--
			arg.WriteString("}}")
			i++
		case depth == 0 && strings.IndexByte(" \t\n\r", s[i]) >= 0:
			if pending {
				args = append(args, arg.String())
				arg.Reset()
				pending = false
			}
		default:
			arg.WriteByte(s[i])
			pending = true
		}
	}
	if pending {
		args = append(args, arg.String())
	}
	return args
}

// Signature locates a detached OpenPGP signature of the source archive and
// the public keys it must be signed with.
type Signature struct {
	URL     string `yaml:"url"`
	Keyring string `yaml:"keyring"`
}

type Livecheck struct {
	String *string
	Spec   *LivecheckSpec
}

type LivecheckSpec struct {
	URL         string `yaml:"url"`
	JSONPath    string `yaml:"jsonpath"`
	Prefix      string `yaml:"prefix"`
	Constraints string `yaml:"constraints"`
}

var (
	namePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9+._@-]*$`)
	sha256Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

	registerOnce sync.Once
)

func registerUnmarshalers() {
	yaml.RegisterCustomUnmarshaler(func(t *Dependencies, b []byte) error {
		var v any
		if err := yaml.Unmarshal(b, &v); err != nil {
			return err
		}
		deps, err := parseDependencies(v)
		if err != nil {
			return err
		}
		*t = deps
		return nil
	})
	yaml.RegisterCustomUnmarshaler(func(t *Command, b []byte) error {
		var v any
		if err := yaml.Unmarshal(b, &v); err != nil {
			return err
		}
		switch vv := v.(type) {
		case string:
			*t = splitCommand(vv)
		case []any:
			args := make(Command, 0, len(vv))
			for _, a := range vv {
				switch a.(type) {
				case map[string]any, []any, nil:
					return fmt.Errorf("invalid command argument: %v", a)
				}
				args = append(args, fmt.Sprint(a))
			}
			*t = args
		default:
			return fmt.Errorf("invalid type: %v", reflect.TypeOf(v))
		}
		return nil
	})
	yaml.RegisterCustomUnmarshaler(func(t *Livecheck, b []byte) error {
		var (
			v   any
			err error
		)
		if err = yaml.Unmarshal(b, &v); err != nil {
			return err
		}
		switch vv := v.(type) {
		case string:
			t.String = &vv
		case map[string]any:
			var tt LivecheckSpec
			if err = yaml.Unmarshal(b, &tt); err == nil {
				t.Spec = &tt
			}
		default:
			err = fmt.Errorf("invalid type: %v", reflect.TypeOf(v))
		}
		return err
	})
}

func parseDependencies(v any) (Dependencies, error) {
	var deps Dependencies
	switch vv := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		for name, phase := range vv {
			p, ok := phase.(string)
			if !ok {
				return nil, fmt.Errorf("invalid phase for %s: %v", name, phase)
			}
			deps = append(deps, Dependency{Name: name, Phase: Phase(p)})
		}
		sort.Slice(deps, func(i, j int) bool {
			return deps[i].Name < deps[j].Name
		})
	case []any:
		for _, item := range vv {
			switch it := item.(type) {
			case string:
				deps = append(deps, Dependency{Name: it, Phase: PhaseRun})
			case map[string]any:
				more, err := parseDependencies(it)
				if err != nil {
					return nil, err
				}
				deps = append(deps, more...)
			default:
				return nil, fmt.Errorf("invalid dependency: %v", item)
			}
		}
	default:
		return nil, fmt.Errorf("invalid type: %v", reflect.TypeOf(v))
	}
	return deps, nil
}

// LoadFormula decodes a formula from r and validates it.
func LoadFormula(r io.Reader) (*Formula, error) {
	registerOnce.Do(registerUnmarshalers)

	var f Formula
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, categorize(ErrFormula, fmt.Errorf("decode formula: %w", err))
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if _, err := semver.NewVersion(f.Version); err != nil {
		slog.Warn("formula version is not a semantic version", "name", f.Name, "version", f.Version)
	}
	return &f, nil
}

// LoadFormulaFile reads, schema-checks and decodes the formula in the named
// file.
func LoadFormulaFile(name string) (*Formula, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, categorize(ErrFormula, err)
	}
	if err := ValidateSchema(data); err != nil {
		return nil, categorize(ErrFormula, fmt.Errorf("%s: %w", name, err), "file", name)
	}
	f, err := LoadFormula(bytes.NewReader(data))
	if err != nil {
		return nil, categorize(ErrFormula, fmt.Errorf("%s: %w", name, err), "file", name)
	}
	f.Path = name
	return f, nil
}

// Validate checks the fields of the formula and reports every problem found.
func (f *Formula) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch {
	case f.Name == "":
		addf("missing name")
	case !namePattern.MatchString(f.Name):
		addf("invalid name: %q", f.Name)
	}
	if f.Desc == "" {
		addf("missing desc")
	}
	if f.Homepage == "" {
		addf("missing homepage")
	} else if u, err := url.Parse(f.Homepage); err != nil || u.Host == "" {
		addf("invalid homepage: %q", f.Homepage)
	}
	if f.URL == "" {
		addf("missing url")
	} else if u, err := url.Parse(f.URL); err != nil {
		addf("invalid url: %q", f.URL)
	} else if !slices.Contains([]string{"http", "https", "file"}, u.Scheme) {
		addf("unsupported url scheme: %q", u.Scheme)
	}
	if f.Version == "" {
		addf("missing version")
	}
	switch {
	case f.SHA256 == "":
		addf("missing sha256")
	case !sha256Pattern.MatchString(f.SHA256):
		addf("invalid sha256: want 64 hex characters, got %d", len(f.SHA256))
	}
	for _, dep := range f.DependsOn {
		if dep.Name == "" {
			addf("dependency without name")
		}
		if !slices.Contains(phases, dep.Phase) {
			addf("invalid phase for dependency %s: %q", dep.Name, dep.Phase)
		}
	}
	if len(f.Install) == 0 {
		addf("missing install commands")
	}
	for i, c := range f.Install {
		if len(c) == 0 {
			addf("empty install command #%d", i+1)
		}
	}
	for i, c := range f.Test {
		if len(c) == 0 {
			addf("empty test command #%d", i+1)
		}
	}
	if f.Signature != nil && (f.Signature.URL == "" || f.Signature.Keyring == "") {
		addf("signature needs both url and keyring")
	}

	if len(problems) > 0 {
		name := f.Name
		if name == "" {
			name = "<unnamed>"
		}
		return newError(ErrFormula, "invalid formula %s: %s", name, strings.Join(problems, "; "))
	}
	return nil
}

// ArchiveName returns the file name of the source archive.
func (f *Formula) ArchiveName() string {
	u, err := url.Parse(f.URL)
	if err != nil || u.Path == "" {
		return f.Name + "-" + f.Version
	}
	return path.Base(u.Path)
}
