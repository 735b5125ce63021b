package main

import (
	"errors"
	"strings"
	"testing"

	oerrors "github.com/vango-dev/observ/internal/errors"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: small
description: quick check
workloads:
  - kind: fanout
    writes: 10
    observers: 4
  - kind: list
    name: rotate
    writes: 3
    size: 8
    optimized: true
`))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	if s.Name != "small" || len(s.Workloads) != 2 {
		t.Fatalf("scenario = %+v", s)
	}
	if s.Workloads[0].Name != "fanout" {
		t.Errorf("default name = %q, want fanout", s.Workloads[0].Name)
	}
	w := s.Workloads[1]
	if w.Name != "rotate" || w.Size != 8 || !w.Optimized {
		t.Errorf("list workload = %+v", w)
	}
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "name: x\nworkloads:\n  - kind: fanout\n    writes: 1\n    observers: 1\n    fanout: 3\n", "field fanout not found"},
		{"no name", "workloads:\n  - kind: fanout\n    writes: 1\n    observers: 1\n", "no name"},
		{"no workloads", "name: x\n", "no workloads"},
		{"unknown kind", "name: x\nworkloads:\n  - kind: wide\n    writes: 1\n", `unknown kind "wide"`},
		{"zero writes", "name: x\nworkloads:\n  - kind: deep\n    depth: 2\n", "writes must be positive"},
		{"missing depth", "name: x\nworkloads:\n  - kind: deep\n    writes: 1\n", "missing size"},
		{"missing batch size", "name: x\nworkloads:\n  - kind: batch\n    writes: 1\n    observers: 2\n", "missing size"},
		{"one item list", "name: x\nworkloads:\n  - kind: list\n    writes: 1\n    size: 1\n", "missing size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			var oerr *oerrors.Error
			if !errors.As(err, &oerr) || oerr.Code != "R080" {
				t.Fatalf("error = %v, want R080", err)
			}
			if !strings.Contains(oerr.Detail, tt.want) {
				t.Errorf("detail = %q, want it to contain %q", oerr.Detail, tt.want)
			}
		})
	}
}

func TestDefaultScenario(t *testing.T) {
	s := DefaultScenario(5, 3, 4, 10)
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, w := range s.Workloads {
		if w.Kind == KindList && w.Writes != 1 {
			t.Errorf("%s writes = %d, want at least one reorder", w.Name, w.Writes)
		}
	}
}
