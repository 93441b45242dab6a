package main

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const prepSHA256 = "3028b0fd536960694a747b43ef85be11f210e796d2b9090445a3cde1750b2cf4"

func TestLoadFormulaFile(t *testing.T) {
	got, err := LoadFormulaFile("testdata/prep.yaml")
	if err != nil {
		t.Fatalf("LoadFormulaFile() failed: %v", err)
	}

	want := &Formula{
		Name:      "prep",
		Desc:      "a c/c++ dependency manager and build tool",
		Homepage:  "https://github.com/ryjen/prep",
		URL:       "https://github.com/ryjen/prep/releases/download/v0.1.0/prep-0.1.0.tar.gz",
		Version:   "0.1.0",
		SHA256:    prepSHA256,
		DependsOn: Dependencies{{Name: "cmake", Phase: PhaseBuild}},
		Install: []Command{
			{"cmake", ".", "@std_cmake_args"},
			{"make", "install"},
		},
		Test: []Command{
			{"make", "-C", "{{ .Buildpath }}", "test"},
		},
		Path: "testdata/prep.yaml",
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("LoadFormulaFile() mismatch (-want/+got): %v", d)
	}
	if got.ArchiveName() != "prep-0.1.0.tar.gz" {
		t.Errorf("ArchiveName() = %q", got.ArchiveName())
	}
}

func TestLoadFormulaFileInvalidChecksum(t *testing.T) {
	_, err := LoadFormulaFile("testdata/invalid.yaml")
	if err == nil {
		t.Fatal("LoadFormulaFile() succeeded unexpectedly")
	}
	if !IsKind(err, ErrFormula) {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), ErrFormula)
	}
	if got, want := ExitCode(err), 3; got != want {
		t.Errorf("ExitCode() = %d, want %d", got, want)
	}
}

func Test_splitCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{line: "make install", want: Command{"make", "install"}},
		{line: "  make\tinstall \n", want: Command{"make", "install"}},
		{line: "cmake -DPREFIX={{ .Prefix }} .", want: Command{"cmake", "-DPREFIX={{ .Prefix }}", "."}},
		{line: "{{ .Bin }}/prep --version", want: Command{"{{ .Bin }}/prep", "--version"}},
		{line: `echo {{ trimPrefix "v" .Version }}`, want: Command{"echo", `{{ trimPrefix "v" .Version }}`}},
		{line: "make -C {{.Buildpath}} test", want: Command{"make", "-C", "{{.Buildpath}}", "test"}},
		{line: "", want: nil},
	}
	for _, tt := range tests {
		if d := cmp.Diff(tt.want, splitCommand(tt.line)); d != "" {
			t.Errorf("splitCommand(%q) mismatch (-want/+got): %v", tt.line, d)
		}
	}
}

func TestLoadFormula(t *testing.T) {
	const header = `
name: prep
desc: a c/c++ dependency manager and build tool
homepage: https://github.com/ryjen/prep
url: https://github.com/ryjen/prep/releases/download/v0.1.0/prep-0.1.0.tar.gz
version: "0.1.0"
sha256: ` + prepSHA256 + "\n"

	tests := []struct {
		testName string
		body     string
		check    func(t *testing.T, f *Formula)
		wantErr  string
	}{
		{
			testName: "dependency list",
			body: `
depends_on:
  - pkg-config
  - cmake: build
  - googletest: test
install:
  - make install
`,
			check: func(t *testing.T, f *Formula) {
				want := Dependencies{
					{Name: "pkg-config", Phase: PhaseRun},
					{Name: "cmake", Phase: PhaseBuild},
					{Name: "googletest", Phase: PhaseTest},
				}
				if d := cmp.Diff(want, f.DependsOn); d != "" {
					t.Errorf("DependsOn mismatch (-want/+got): %v", d)
				}
				if d := cmp.Diff([]string{"cmake"}, f.DependsOn.Of(PhaseBuild)); d != "" {
					t.Errorf("Of(build) mismatch (-want/+got): %v", d)
				}
			},
		},
		{
			testName: "dependency map is sorted",
			body: `
depends_on:
  ninja: build
  cmake: build
install:
  - ninja install
`,
			check: func(t *testing.T, f *Formula) {
				if d := cmp.Diff([]string{"cmake", "ninja"}, f.DependsOn.Of(PhaseBuild)); d != "" {
					t.Errorf("Of(build) mismatch (-want/+got): %v", d)
				}
			},
		},
		{
			testName: "deparallelize and livecheck",
			body: `
deparallelize: true
install:
  - [make, "PREFIX={{ .Prefix }}", install]
  - "cmake -DCMAKE_INSTALL_PREFIX={{ .Prefix }} ."
livecheck:
  url: https://example.com/versions.json
  jsonpath: "$.versions[*]"
`,
			check: func(t *testing.T, f *Formula) {
				if !f.Deparallelize {
					t.Error("Deparallelize = false, want true")
				}
				want := LivecheckSpec{URL: "https://example.com/versions.json", JSONPath: "$.versions[*]"}
				if f.Livecheck.Spec == nil {
					t.Fatal("Livecheck.Spec = nil")
				}
				if d := cmp.Diff(want, *f.Livecheck.Spec); d != "" {
					t.Errorf("Livecheck mismatch (-want/+got): %v", d)
				}
				if d := cmp.Diff(Command{"make", "PREFIX={{ .Prefix }}", "install"}, f.Install[0]); d != "" {
					t.Errorf("Install mismatch (-want/+got): %v", d)
				}
				args, err := expandCommand(f.Install[1], newBuildContext(f, "/opt/formula", "", 1))
				if err != nil {
					t.Fatalf("expandCommand() failed: %v", err)
				}
				if d := cmp.Diff([]string{"cmake", "-DCMAKE_INSTALL_PREFIX=/opt/formula", "."}, args); d != "" {
					t.Errorf("expanded install mismatch (-want/+got): %v", d)
				}
			},
		},
		{
			testName: "livecheck shorthand",
			body: `
install:
  - make install
livecheck: github://ryjen/prep
`,
			check: func(t *testing.T, f *Formula) {
				if f.Livecheck.String == nil || *f.Livecheck.String != "github://ryjen/prep" {
					t.Errorf("Livecheck.String = %v", f.Livecheck.String)
				}
			},
		},
		{
			testName: "missing install",
			body:     "\n",
			wantErr:  "missing install commands",
		},
		{
			testName: "unknown phase",
			body: `
depends_on:
  cmake: compile
install:
  - make install
`,
			wantErr: `invalid phase for dependency cmake: "compile"`,
		},
		{
			testName: "incomplete signature",
			body: `
install:
  - make install
signature:
  url: https://example.com/prep.tar.gz.asc
`,
			wantErr: "signature needs both url and keyring",
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			f, err := LoadFormula(strings.NewReader(header + tt.body))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("LoadFormula() succeeded unexpectedly")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("LoadFormula() error = %q, want it to contain %q", err, tt.wantErr)
				}
				if !IsKind(err, ErrFormula) {
					t.Errorf("KindOf() = %q, want %q", KindOf(err), ErrFormula)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFormula() failed: %v", err)
			}
			tt.check(t, f)
		})
	}
}

func TestFormulaValidate(t *testing.T) {
	valid := func() Formula {
		return Formula{
			Name:     "prep",
			Desc:     "a c/c++ dependency manager and build tool",
			Homepage: "https://github.com/ryjen/prep",
			URL:      "https://github.com/ryjen/prep/releases/download/v0.1.0/prep-0.1.0.tar.gz",
			Version:  "0.1.0",
			SHA256:   prepSHA256,
			Install:  []Command{{"make", "install"}},
		}
	}

	tests := []struct {
		testName string
		mutate   func(f *Formula)
		wantErr  string
	}{
		{
			testName: "valid",
			mutate:   func(f *Formula) {},
		},
		{
			testName: "uppercase checksum",
			mutate:   func(f *Formula) { f.SHA256 = strings.ToUpper(prepSHA256) },
		},
		{
			testName: "65 character checksum",
			mutate:   func(f *Formula) { f.SHA256 = prepSHA256 + "0" },
			wantErr:  "want 64 hex characters, got 65",
		},
		{
			testName: "non hex checksum",
			mutate:   func(f *Formula) { f.SHA256 = strings.Repeat("g", 64) },
			wantErr:  "invalid sha256",
		},
		{
			testName: "bad name",
			mutate:   func(f *Formula) { f.Name = "Prep Tool" },
			wantErr:  "invalid name",
		},
		{
			testName: "unsupported scheme",
			mutate:   func(f *Formula) { f.URL = "ftp://example.com/prep.tar.gz" },
			wantErr:  `unsupported url scheme: "ftp"`,
		},
		{
			testName: "empty command",
			mutate:   func(f *Formula) { f.Test = []Command{{}} },
			wantErr:  "empty test command #1",
		},
		{
			testName: "everything missing",
			mutate:   func(f *Formula) { *f = Formula{} },
			wantErr:  "missing name; missing desc; missing homepage; missing url; missing version; missing sha256; missing install commands",
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			f := valid()
			tt.mutate(&f)
			err := f.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() succeeded unexpectedly")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSchema(t *testing.T) {
	valid, err := os.ReadFile("testdata/prep.yaml")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		testName string
		data     string
		wantErr  bool
	}{
		{
			testName: "prep",
			data:     string(valid),
		},
		{
			testName: "unknown field",
			data:     string(valid) + "bottle: true\n",
			wantErr:  true,
		},
		{
			testName: "bad phase",
			data:     strings.Replace(string(valid), "cmake: build", "cmake: always", 1),
			wantErr:  true,
		},
		{
			testName: "long checksum",
			data:     strings.Replace(string(valid), prepSHA256, prepSHA256+"a", 1),
			wantErr:  true,
		},
		{
			testName: "not yaml",
			data:     "name: [",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.data))
			if err != nil {
				if !tt.wantErr {
					t.Errorf("ValidateSchema() failed: %v", err)
				}
				return
			}
			if tt.wantErr {
				t.Fatal("ValidateSchema() succeeded unexpectedly")
			}
		})
	}
}
