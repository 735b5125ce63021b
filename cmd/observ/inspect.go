package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vango-dev/observ/pkg/inspect"
	"github.com/vango-dev/observ/pkg/observ"
	"github.com/vango-dev/observ/pkg/render"
)

func inspectCmd(load loader) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Serve the inspector for a live demo graph",
		Long: `Build a demo todo graph, mutate it on a timer and serve the inspector.

Endpoints:
  /graph          subscriptions per node and path
  /stats          runtime counters
  /flushes        recent flush records (JSON, or /flushes.jsonl)
  /metrics        Prometheus metrics
  /events         WebSocket stream of flush records`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Inspector.Address = addr
			}
			logger := newLogger(cfg)

			reg := prometheus.NewRegistry()
			rec := inspect.NewRecorder(cfg.Inspector.Capacity)
			rt := newRuntime(cfg, logger, reg, rec)

			demo := newDemo(rt, logger)
			defer demo.Dispose()

			srv := inspect.NewServer(rt, rec, inspect.ServerConfig{
				Address:      cfg.Inspector.Address,
				Gatherer:     reg,
				Logger:       logger,
				WriteTimeout: cfg.WriteTimeout(),
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go demo.drive(ctx, interval)

			fmt.Println()
			info("Session    %s", rec.Session())
			info("Inspector  http://localhost%s", cfg.Inspector.Address)
			info("Writes     every %s", interval)
			fmt.Println()

			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			success("Recorded %d flushes (%d dropped)", rec.Len(), rec.Dropped())
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Time between demo writes")

	return cmd
}

// demo is a small todo graph exercising every primitive.
type demo struct {
	rt     *observ.Runtime
	logger *slog.Logger
	todos  *observ.Node
	nextID int

	remaining *observ.Selector[int]
	list      *render.List[string]
	footer    *render.Branch[string]
	filter    *render.Switch[string, string]
}

func newDemo(rt *observ.Runtime, logger *slog.Logger) *demo {
	d := &demo{rt: rt, logger: logger}
	d.todos = rt.NewNode(map[string]any{
		"filter": "all",
		"items": []any{
			d.newItem("write the propagator"),
			d.newItem("key the list"),
			d.newItem("ship the inspector"),
		},
	}).WithName("todos")

	d.remaining = observ.SelectorOn(rt, func() int {
		n := 0
		for _, it := range observ.As[[]any](d.todos.Get("items")) {
			if done, _ := observ.Lookup(it, observ.P("done")); done != true {
				n++
			}
		}
		return n
	}).Named("remaining")

	d.list = render.ForEach(d.todos.At("items"), render.KeyField("id"), func(v *observ.View, _ *observ.Scope) string {
		mark := " "
		if v.Get("done") == true {
			mark = "x"
		}
		return fmt.Sprintf("[%s] %v", mark, v.Get("title"))
	}, render.On(rt), render.Named("items"), render.Optimized(true))

	d.footer = render.Show(d.remaining, func(*observ.Scope) string {
		return fmt.Sprintf("%d left", d.remaining.Get())
	}, render.On(rt), render.Named("footer"))

	d.filter = render.SwitchOn(d.todos.At("filter"), map[string]func(*observ.Scope) string{
		"all":    func(*observ.Scope) string { return "showing all" },
		"active": func(*observ.Scope) string { return "showing active" },
		"done":   func(*observ.Scope) string { return "showing done" },
	}, render.On(rt), render.Named("filter"))

	d.list.OnEdit(func(s render.EditScript) {
		removes, inserts, moves := s.Counts()
		logger.Debug("list edited", "removes", removes, "inserts", inserts, "moves", moves)
	})
	return d
}

func (d *demo) newItem(title string) map[string]any {
	d.nextID++
	return map[string]any{"id": d.nextID, "title": title, "done": false}
}

// step applies one random mutation.
func (d *demo) step() error {
	items := d.todos.At("items")
	n := items.Len()
	switch op := rand.IntN(5); {
	case op == 0 || n == 0:
		return items.Append(d.newItem(fmt.Sprintf("task %d", d.nextID+1)))
	case op == 1 && n > 1:
		return items.Remove(rand.IntN(n))
	case op == 2:
		return items.At(rand.IntN(n), "done").Update(func(old any) any { return old != true })
	case op == 3 && n > 1:
		return items.Update(func(old any) any {
			cur := old.([]any)
			next := make([]any, len(cur))
			for i := range cur {
				next[i] = cur[len(cur)-1-i]
			}
			return next
		})
	default:
		filters := []string{"all", "active", "done"}
		return d.rt.Batch(func() error {
			if err := d.todos.At("filter").Set(filters[rand.IntN(len(filters))]); err != nil {
				return err
			}
			return items.At(0, "title").Set(fmt.Sprintf("renamed %d", rand.IntN(100)))
		})
	}
}

// drive mutates the graph every interval until ctx ends.
func (d *demo) drive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.step(); err != nil {
				d.logger.Warn("demo write failed", "error", err)
				continue
			}
			d.logger.Info("demo state",
				"items", len(d.list.Items()),
				"footer", d.footer.Current(),
				"filter", d.filter.Current())
		}
	}
}

func (d *demo) Dispose() {
	d.filter.Dispose()
	d.footer.Dispose()
	d.list.Dispose()
	d.remaining.Dispose()
	d.todos.Dispose()
}
