package main

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func urlMustParse(s string) url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return *u
}

func Test_resolveGitHubLivecheck(t *testing.T) {
	tests := []struct {
		testName string // description of this test case
		// Named input parameters for target function.
		u       url.URL
		want    LivecheckSpec
		wantErr bool
	}{
		{
			u: urlMustParse("github://ryjen/prep?prefix=v"),
			want: LivecheckSpec{
				URL:      "https://api.github.com/repos/ryjen/prep/releases",
				JSONPath: "$[*].tag_name",
				Prefix:   "v",
			},
		},
		{
			u: urlMustParse("https://github.com/ryjen/prep/releases/download/v0.1.0/prep-0.1.0.tar.gz"),
			want: LivecheckSpec{
				URL:      "https://api.github.com/repos/ryjen/prep/releases",
				JSONPath: "$[*].tag_name",
				Prefix:   "v",
			},
		},
		{
			u: urlMustParse("https://github.com/jqlang/jq/releases/download/jq-1.7.1/jq-1.7.1.tar.gz"),
			want: LivecheckSpec{
				URL:      "https://api.github.com/repos/jqlang/jq/releases",
				JSONPath: "$[*].tag_name",
			},
		},
		{
			u:       urlMustParse("https://github.com/ryjen"),
			wantErr: true, // missing repository
		},
		{
			u:       urlMustParse("https://example.com/prep.tar.gz"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got, gotErr := resolveGitHubLivecheck(tt.u)
			if gotErr != nil {
				if !tt.wantErr {
					t.Errorf("resolveGitHubLivecheck() failed: %v", gotErr)
				}
				return
			}
			if tt.wantErr {
				t.Fatal("resolveGitHubLivecheck() succeeded unexpectedly")
			}

			if d := cmp.Diff(tt.want, got); d != "" {
				t.Errorf("resolveGitHubLivecheck() mismatch (-want/+got): %v", d)
			}
		})
	}
}

func Test_resolveLivecheck(t *testing.T) {
	explicit := "https://example.com/versions.json"
	shorthand := "github://ryjen/prep"

	tests := []struct {
		testName string
		formula  Formula
		want     LivecheckSpec
		wantErr  bool
	}{
		{
			testName: "spec",
			formula: Formula{
				URL:       "https://example.com/prep-0.1.0.tar.gz",
				Livecheck: Livecheck{Spec: &LivecheckSpec{URL: explicit, JSONPath: "$.versions[*]"}},
			},
			want: LivecheckSpec{URL: explicit, JSONPath: "$.versions[*]"},
		},
		{
			testName: "explicit url",
			formula: Formula{
				URL:       "https://example.com/prep-0.1.0.tar.gz",
				Livecheck: Livecheck{String: &explicit},
			},
			want: LivecheckSpec{URL: explicit},
		},
		{
			testName: "github shorthand",
			formula: Formula{
				URL:       "https://example.com/prep-0.1.0.tar.gz",
				Livecheck: Livecheck{String: &shorthand},
			},
			want: LivecheckSpec{
				URL:      "https://api.github.com/repos/ryjen/prep/releases",
				JSONPath: "$[*].tag_name",
			},
		},
		{
			testName: "derived from archive url",
			formula: Formula{
				URL: "https://github.com/ryjen/prep/releases/download/v0.1.0/prep-0.1.0.tar.gz",
			},
			want: LivecheckSpec{
				URL:      "https://api.github.com/repos/ryjen/prep/releases",
				JSONPath: "$[*].tag_name",
				Prefix:   "v",
			},
		},
		{
			testName: "no strategy",
			formula: Formula{
				Name: "prep",
				URL:  "https://example.com/prep-0.1.0.tar.gz",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got, gotErr := resolveLivecheck(&tt.formula)
			if gotErr != nil {
				if !tt.wantErr {
					t.Errorf("resolveLivecheck() failed: %v", gotErr)
				}
				return
			}
			if tt.wantErr {
				t.Fatal("resolveLivecheck() succeeded unexpectedly")
			}
			if d := cmp.Diff(tt.want, got); d != "" {
				t.Errorf("resolveLivecheck() mismatch (-want/+got): %v", d)
			}
		})
	}
}
