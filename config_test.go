package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name string // description of this test case
		// Named input parameters for target function.
		r       io.Reader
		want    Config
		wantErr bool
	}{
		{
			name: "nil reader",
			r:    nil,
			want: Config{},
		},
		{
			name: "full",
			r: bytes.NewReader([]byte(`
global:
  prefix: /usr/local
  jobs: 2
formulae:
  - formula/*.yaml
`)),
			want: Config{
				Global:   Global{Prefix: "/usr/local", Jobs: 2},
				Formulae: []string{"formula/*.yaml"},
			},
		},
		{
			name:    "malformed",
			r:       bytes.NewReader([]byte("global: [")),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Config
			gotErr := LoadConfig(tt.r, &got)
			if gotErr != nil {
				if !tt.wantErr {
					t.Errorf("LoadConfig() failed: %v", gotErr)
				}
				return
			}
			if tt.wantErr {
				t.Fatal("LoadConfig() succeeded unexpectedly")
			}
			if d := cmp.Diff(tt.want, got); d != "" {
				t.Errorf("LoadConfig() mismatch (-want/+got): %v", d)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	var cfg Config
	if err := LoadConfigFile("testdata/config.yaml", &cfg); err != nil {
		t.Fatalf("LoadConfigFile() failed: %v", err)
	}

	want := Config{
		Global: Global{
			Prefix:   "/opt/formula",
			CacheDir: "/tmp/formula-cache",
			Jobs:     4,
		},
		Formulae: []string{"prep.yaml"},
	}
	if d := cmp.Diff(want, cfg); d != "" {
		t.Errorf("LoadConfigFile() mismatch (-want/+got): %v", d)
	}

	if err := LoadConfigFile("testdata/missing.yaml", &cfg); err == nil {
		t.Error("LoadConfigFile() succeeded unexpectedly for a missing file")
	}
}

func TestConfigLoadFormulae(t *testing.T) {
	tests := []struct {
		testName string
		cfg      Config
		want     []string
		wantKind ErrorKind
	}{
		{
			testName: "single file",
			cfg:      Config{Formulae: []string{"prep.yaml"}},
			want:     []string{"prep"},
		},
		{
			testName: "glob without match",
			cfg:      Config{Formulae: []string{"nothing-*.yaml"}},
			wantKind: ErrUsage,
		},
		{
			testName: "duplicate",
			cfg:      Config{Formulae: []string{"prep.yaml", "prep.yaml"}},
			wantKind: ErrFormula,
		},
		{
			testName: "invalid formula",
			cfg:      Config{Formulae: []string{"invalid.yaml"}},
			wantKind: ErrFormula,
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got, err := tt.cfg.LoadFormulae("testdata")
			if tt.wantKind != "" {
				if err == nil {
					t.Fatal("LoadFormulae() succeeded unexpectedly")
				}
				if kind := KindOf(err); kind != tt.wantKind {
					t.Errorf("KindOf() = %q, want %q", kind, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFormulae() failed: %v", err)
			}
			var names []string
			for _, f := range got {
				names = append(names, f.Name)
			}
			if d := cmp.Diff(tt.want, names); d != "" {
				t.Errorf("LoadFormulae() mismatch (-want/+got): %v", d)
			}
		})
	}
}

func TestGlobalDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	g := Global{}
	if got, want := g.prefix(), "/home/tester/.local"; got != want {
		t.Errorf("prefix() = %q, want %q", got, want)
	}
	if got := g.jobs(); got < 1 {
		t.Errorf("jobs() = %d, want > 0", got)
	}

	g = Global{Prefix: "~/opt", CacheDir: "$HOME/cache", Jobs: 3}
	if got, want := g.prefix(), "/home/tester/opt"; got != want {
		t.Errorf("prefix() = %q, want %q", got, want)
	}
	if got, want := g.cacheDir(), "/home/tester/cache"; got != want {
		t.Errorf("cacheDir() = %q, want %q", got, want)
	}
	if got, want := g.jobs(), 3; got != want {
		t.Errorf("jobs() = %d, want %d", got, want)
	}
}

func Test_renderTemplate(t *testing.T) {
	tests := []struct {
		name string // description of this test case
		// Named input parameters for target function.
		tmpl    string
		data    any
		want    string
		wantErr bool
	}{
		{
			tmpl: "{{ .Prefix }}/bin/{{ .Name }}",
			data: BuildContext{Name: "prep", Prefix: "/opt/formula"},
			want: "/opt/formula/bin/prep",
		},
		{
			tmpl: `{{ trimPrefix "v" .Version }}`,
			data: BuildContext{Version: "v0.1.0"},
			want: "0.1.0",
		},
		{
			tmpl:    "{{ .Missing }}",
			data:    BuildContext{},
			wantErr: true,
		},
		{
			tmpl:    "{{ .Name ",
			data:    BuildContext{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotErr := renderTemplate(tt.tmpl, tt.data)
			if gotErr != nil {
				if !tt.wantErr {
					t.Errorf("renderTemplate() failed: %v", gotErr)
				}
				return
			}
			if tt.wantErr {
				t.Fatal("renderTemplate() succeeded unexpectedly")
			}
			if got != tt.want {
				t.Errorf("renderTemplate() = %v, want %v", got, tt.want)
			}
		})
	}
}
