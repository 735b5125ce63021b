package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vango-dev/observ/internal/config"
	"github.com/vango-dev/observ/pkg/observ"
	"github.com/vango-dev/observ/pkg/render"
)

// Result is the outcome of one workload.
type Result struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Writes   int           `json:"writes"`
	Flushes  uint64        `json:"flushes"`
	Runs     uint64        `json:"runs"`
	Moves    int           `json:"moves,omitempty"`
	Duration time.Duration `json:"duration"`
	PerWrite time.Duration `json:"perWrite"`
}

func benchCmd(load loader) *cobra.Command {
	var (
		scenarioPath string
		writes       int
		observers    int
		depth        int
		size         int
		jsonOutput   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run propagation workloads",
		Long: `Run propagation workloads and print timings.

Without --scenario a default set is run, sized by the flags.

Examples:
  observ bench
  observ bench --writes=10000 --observers=500
  observ bench --scenario=bench.yaml --json=results.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			scenario := DefaultScenario(writes, observers, depth, size)
			if scenarioPath != "" {
				if scenario, err = LoadScenario(scenarioPath); err != nil {
					return err
				}
			} else if err := scenario.Validate(); err != nil {
				return err
			}

			results, err := runScenario(cfg, scenario)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), scenario, results)

			if jsonOutput != "" {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(jsonOutput, append(data, '\n'), 0644); err != nil {
					return err
				}
				success("Wrote %s", jsonOutput)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file")
	cmd.Flags().IntVarP(&writes, "writes", "w", 1000, "Writes per workload")
	cmd.Flags().IntVarP(&observers, "observers", "n", 100, "Observers for fan-out workloads")
	cmd.Flags().IntVar(&depth, "depth", 8, "Path depth for the deep workload")
	cmd.Flags().IntVar(&size, "size", 200, "List length for list workloads")
	cmd.Flags().StringVar(&jsonOutput, "json", "", "Write results as JSON to this file")

	return cmd
}

func runScenario(cfg *config.Config, s *Scenario) ([]Result, error) {
	logger := newLogger(cfg)
	results := make([]Result, 0, len(s.Workloads))
	for _, w := range s.Workloads {
		rt := newRuntime(cfg, logger, prometheus.NewRegistry())
		res, err := runWorkload(rt, w)
		if err != nil {
			return results, fmt.Errorf("workload %s: %w", w.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// runWorkload builds the workload's graph on rt, performs its writes and
// reports what propagation did.
func runWorkload(rt *observ.Runtime, w Workload) (Result, error) {
	res := Result{Name: w.Name, Kind: w.Kind, Writes: w.Writes}
	if res.Name == "" {
		res.Name = w.Kind
	}

	var write func(i int) error
	var teardown func()

	switch w.Kind {
	case KindFanout:
		n := rt.NewNode(map[string]any{"v": 0})
		scope := observ.NewScope(nil)
		teardown = scope.Dispose
		for i := 0; i < w.Observers; i++ {
			o := rt.NewObserver(func() error {
				n.Get("v")
				return nil
			}, observ.OwnedBy(scope))
			if err := o.Run(); err != nil {
				return res, err
			}
		}
		write = func(i int) error { return n.At("v").Set(i + 1) }

	case KindSiblings, KindBatch:
		keys := make(map[string]any, w.Observers)
		for i := 0; i < w.Observers; i++ {
			keys[strconv.Itoa(i)] = 0
		}
		n := rt.NewNode(keys)
		scope := observ.NewScope(nil)
		teardown = scope.Dispose
		for i := 0; i < w.Observers; i++ {
			key := strconv.Itoa(i)
			o := rt.NewObserver(func() error {
				n.Get(key)
				return nil
			}, observ.OwnedBy(scope))
			if err := o.Run(); err != nil {
				return res, err
			}
		}
		write = func(i int) error {
			return n.At(strconv.Itoa(i % w.Observers)).Set(i + 1)
		}
		if w.Kind == KindBatch {
			single := write
			write = func(i int) error {
				if i%w.BatchSize != 0 {
					return nil
				}
				return rt.Batch(func() error {
					for j := i; j < i+w.BatchSize && j < w.Writes; j++ {
						if err := single(j); err != nil {
							return err
						}
					}
					return nil
				})
			}
		}

	case KindDeep:
		path := make([]any, w.Depth)
		var root any = 0
		for i := w.Depth - 1; i >= 0; i-- {
			path[i] = "k" + strconv.Itoa(i)
			root = map[string]any{path[i].(string): root}
		}
		n := rt.NewNode(root)
		scope := observ.NewScope(nil)
		teardown = scope.Dispose
		for level := 0; level <= w.Depth; level++ {
			prefix := path[:level]
			o := rt.NewObserver(func() error {
				n.Get(prefix...)
				return nil
			}, observ.OwnedBy(scope))
			if err := o.Run(); err != nil {
				return res, err
			}
		}
		leaf := n.At(path...)
		write = func(i int) error { return leaf.Set(i + 1) }

	case KindList:
		items := make([]any, w.Size)
		for i := range items {
			items[i] = map[string]any{"id": i, "label": "item " + strconv.Itoa(i)}
		}
		n := rt.NewNode(map[string]any{"items": items})
		list := render.ForEach(n.At("items"), render.KeyField("id"), func(v *observ.View, _ *observ.Scope) string {
			return fmt.Sprint(v.Get("label"))
		}, render.Optimized(w.Optimized))
		list.OnEdit(func(s render.EditScript) {
			_, _, moves := s.Counts()
			res.Moves += moves
		})
		teardown = list.Dispose
		write = func(int) error {
			return n.At("items").Update(func(old any) any {
				cur := old.([]any)
				next := make([]any, 0, len(cur))
				next = append(next, cur[1:]...)
				return append(next, cur[0])
			})
		}

	default:
		return res, fmt.Errorf("unknown workload kind %q", w.Kind)
	}
	defer teardown()

	before := rt.Stats()
	start := time.Now()
	for i := 0; i < w.Writes; i++ {
		if err := write(i); err != nil {
			return res, err
		}
	}
	res.Duration = time.Since(start)
	after := rt.Stats()

	res.Flushes = after.Flushes - before.Flushes
	res.Runs = after.Runs - before.Runs
	res.PerWrite = res.Duration / time.Duration(w.Writes)
	return res, nil
}

func printResults(out io.Writer, s *Scenario, results []Result) {
	fmt.Fprintf(out, "\n  scenario %s\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(out, "  %s\n", s.Description)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "workload\twrites\tflushes\truns\tmoves\ttotal\tper write\t")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\t\n",
			r.Name, r.Writes, r.Flushes, r.Runs, r.Moves,
			r.Duration.Round(time.Microsecond), r.PerWrite)
	}
	tw.Flush()
	fmt.Fprintln(out)
}
