package observ

import (
	"sync"
	"testing"
)

// runLog records the values an observer saw on each run.
type runLog struct {
	mu   sync.Mutex
	seen []any
}

func (l *runLog) add(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, v)
}

func (l *runLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func (l *runLog) last() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.seen) == 0 {
		return nil
	}
	return l.seen[len(l.seen)-1]
}

// watch runs an observer that logs the value at path on every run.
func watch(t *testing.T, rt *Runtime, v *View, parts ...any) (*runLog, *Observer) {
	t.Helper()
	log := &runLog{}
	o := rt.NewObserver(func() error {
		log.add(v.Get(parts...))
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatalf("initial run: %v", err)
	}
	return log, o
}

func mustSet(t *testing.T, v *View, value any) {
	t.Helper()
	if err := v.Set(value); err != nil {
		t.Fatalf("set %s: %v", v, err)
	}
}
