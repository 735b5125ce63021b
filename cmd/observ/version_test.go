package main

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestBuildInfoMerge(t *testing.T) {
	info := &debug.BuildInfo{
		GoVersion: "go1.24.2",
		Main:      debug.Module{Path: "github.com/vango-dev/observ", Version: "v0.3.1"},
		Deps: []*debug.Module{
			{Path: "github.com/spf13/cobra", Version: "v1.10.2"},
			{Path: "gopkg.in/yaml.v3", Version: "v3.0.1", Replace: &debug.Module{Path: "example.com/yaml", Version: "v3.0.2"}},
		},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	b := buildInfo{Version: "dev", Commit: "none", Date: "unknown"}
	b.merge(info)
	if b.Module != "github.com/vango-dev/observ" || b.Version != "v0.3.1" || b.GoVersion != "go1.24.2" {
		t.Errorf("module fields = %+v", b)
	}
	if b.Commit != "0123456789ab" || b.Date != "2026-10-01T12:00:00Z" || !b.Modified {
		t.Errorf("vcs fields = %+v", b)
	}
	if len(b.Deps) != 2 || b.Deps[1] != "example.com/yaml v3.0.2" {
		t.Errorf("Deps = %v", b.Deps)
	}

	var out strings.Builder
	b.write(&out, true)
	for _, want := range []string{
		"Module:     github.com/vango-dev/observ",
		"Commit:     0123456789ab (modified)",
		"Go version: go1.24.2",
		"github.com/spf13/cobra v1.10.2",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestBuildInfoLinkerValuesWin(t *testing.T) {
	info := &debug.BuildInfo{
		Main:     debug.Module{Path: "github.com/vango-dev/observ", Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fffffff"}},
	}

	b := buildInfo{Version: "v1.0.0", Commit: "abc1234", Date: "2026-01-02", GoVersion: "go1.24.0"}
	b.merge(info)
	if b.Version != "v1.0.0" || b.Commit != "abc1234" || b.Date != "2026-01-02" {
		t.Errorf("linker values overwritten: %+v", b)
	}
	if b.GoVersion != "go1.24.0" {
		t.Errorf("empty toolchain must keep runtime version, got %q", b.GoVersion)
	}

	var out strings.Builder
	b.write(&out, false)
	if strings.Contains(out.String(), "Deps:") {
		t.Errorf("deps listed without --deps:\n%s", out.String())
	}
}
