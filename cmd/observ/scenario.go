package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/vango-dev/observ/internal/errors"
	"gopkg.in/yaml.v3"
)

// Scenario is a named set of propagation workloads read from YAML.
type Scenario struct {
	// Name identifies the scenario in reports.
	Name string `yaml:"name"`

	// Description explains what the scenario measures.
	Description string `yaml:"description,omitempty"`

	// Workloads run in order, each on a fresh runtime.
	Workloads []Workload `yaml:"workloads"`
}

// Workload kinds.
const (
	KindFanout   = "fanout"   // many observers on one path
	KindSiblings = "siblings" // one observer per key, writes to one key
	KindDeep     = "deep"     // observers on every ancestor of a deep path
	KindBatch    = "batch"    // writes grouped into batches
	KindList     = "list"     // keyed list reordered by rotation
)

// Workload describes one benchmark run.
type Workload struct {
	Kind string `yaml:"kind"`

	// Name defaults to the kind.
	Name string `yaml:"name,omitempty"`

	// Writes is the number of writes (or reorders for lists).
	Writes int `yaml:"writes"`

	// Observers is the fan-out for fanout, the key count for siblings and
	// batch.
	Observers int `yaml:"observers,omitempty"`

	// Depth is the path depth for deep.
	Depth int `yaml:"depth,omitempty"`

	// BatchSize is the writes per batch for batch.
	BatchSize int `yaml:"batchSize,omitempty"`

	// Size is the list length for list.
	Size int `yaml:"size,omitempty"`

	// Optimized selects the optimized keyed list.
	Optimized bool `yaml:"optimized,omitempty"`
}

// DefaultScenario is used when no scenario file is given.
func DefaultScenario(writes, observers, depth, size int) *Scenario {
	reorders := max(writes/10, 1)
	return &Scenario{
		Name: "default",
		Workloads: []Workload{
			{Kind: KindFanout, Writes: writes, Observers: observers},
			{Kind: KindSiblings, Writes: writes, Observers: observers},
			{Kind: KindDeep, Writes: writes, Depth: depth},
			{Kind: KindBatch, Writes: writes, Observers: observers, BatchSize: 10},
			{Kind: KindList, Writes: reorders, Size: size},
			{Kind: KindList, Name: "list-optimized", Writes: reorders, Size: size, Optimized: true},
		},
	}
}

// LoadScenario reads a scenario file. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errors.New("R080").WithDetail(err.Error())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks names, kinds and sizes, and fills workload names.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("R080").WithDetail("scenario has no name")
	}
	if len(s.Workloads) == 0 {
		return errors.New("R080").WithDetailf("scenario %q has no workloads", s.Name)
	}
	for i := range s.Workloads {
		w := &s.Workloads[i]
		if w.Name == "" {
			w.Name = w.Kind
		}
		if w.Writes <= 0 {
			return errors.New("R080").WithDetailf("workload %d (%s): writes must be positive", i, w.Name)
		}
		var ok bool
		switch w.Kind {
		case KindFanout, KindSiblings:
			ok = w.Observers > 0
		case KindDeep:
			ok = w.Depth > 0
		case KindBatch:
			ok = w.Observers > 0 && w.BatchSize > 0
		case KindList:
			ok = w.Size > 1
		default:
			return errors.New("R080").WithDetailf("workload %d: unknown kind %q", i, w.Kind)
		}
		if !ok {
			return errors.New("R080").WithDetailf("workload %d (%s): missing size for kind %s", i, w.Name, w.Kind)
		}
	}
	return nil
}
