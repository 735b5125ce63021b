package inspect

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/vango-dev/observ/pkg/observ"
)

func newRecorded(t *testing.T, capacity int) (*Recorder, *observ.Runtime, *observ.Node) {
	t.Helper()
	rec := NewRecorder(capacity)
	rt := observ.NewRuntime(observ.WithHooks(rec))
	n := rt.NewNode(map[string]any{"count": 0})
	o := rt.NewObserver(func() error {
		n.Get("count")
		return nil
	}, observ.Named("counter"))
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Dispose)
	return rec, rt, n
}

func TestRecorderRecordsFlushes(t *testing.T) {
	rec, _, n := newRecorded(t, 8)

	if _, err := ulid.ParseStrict(rec.Session()); err != nil {
		t.Fatalf("session is not a ULID: %v", err)
	}
	if err := n.At("count").Set(1); err != nil {
		t.Fatal(err)
	}

	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Flush != 1 || r.Rounds != 1 || r.Writes != 1 || r.Runs != 1 {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Session != rec.Session() {
		t.Error("record session mismatch")
	}
	if len(r.Observers) != 1 || r.Observers[0].Name != "counter" || r.Observers[0].Round != 1 {
		t.Errorf("unexpected runs %+v", r.Observers)
	}
	if _, err := ulid.ParseStrict(r.ID); err != nil {
		t.Errorf("record id is not a ULID: %v", err)
	}
}

func TestRecorderRingBuffer(t *testing.T) {
	rec, _, n := newRecorded(t, 3)
	for i := 1; i <= 5; i++ {
		if err := n.At("count").Set(i); err != nil {
			t.Fatal(err)
		}
	}

	records := rec.Records()
	if len(records) != 3 || rec.Len() != 3 {
		t.Fatalf("expected 3 kept records, got %d", len(records))
	}
	for i, r := range records {
		if want := uint64(i + 3); r.Flush != want {
			t.Errorf("record %d: expected flush %d, got %d", i, want, r.Flush)
		}
	}
	if rec.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", rec.Dropped())
	}
}

func TestRecorderErrorsAndSubscribe(t *testing.T) {
	rec := NewRecorder(0)
	rt := observ.NewRuntime(observ.WithHooks(rec))
	n := rt.NewNode(false)
	o := rt.NewObserver(func() error {
		if n.Get() == true {
			return errors.New("boom")
		}
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}

	var got []Record
	unsubscribe := rec.Subscribe(func(r Record) { got = append(got, r) })

	if err := n.Set(true); err == nil {
		t.Fatal("expected error")
	}
	if len(got) != 1 || !strings.Contains(got[0].Error, "boom") {
		t.Fatalf("unexpected streamed records %+v", got)
	}
	if got[0].Observers[0].Error != "boom" {
		t.Errorf("run error not recorded: %+v", got[0].Observers)
	}

	unsubscribe()
	if err := n.Set(false); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Error("unsubscribed listener still called")
	}
}

func TestRecorderTruncatesRuns(t *testing.T) {
	rec := NewRecorder(4)
	rt := observ.NewRuntime(observ.WithHooks(rec))
	n := rt.NewNode(0)
	for i := 0; i < maxRunsPerRecord+10; i++ {
		o := rt.NewObserver(func() error {
			n.Get()
			return nil
		})
		if err := o.Run(); err != nil {
			t.Fatal(err)
		}
	}
	if err := n.Set(1); err != nil {
		t.Fatal(err)
	}
	r := rec.Records()[0]
	if !r.Truncated || len(r.Observers) != maxRunsPerRecord || r.Runs != maxRunsPerRecord+10 {
		t.Errorf("truncated=%v kept=%d runs=%d", r.Truncated, len(r.Observers), r.Runs)
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	rec, _, n := newRecorded(t, 8)
	for i := 1; i <= 3; i++ {
		if err := n.At("count").Set(i); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := rec.WriteJSONL(&buf); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}

	back, err := ReadJSONL(strings.NewReader(buf.String() + "\n"))
	if err != nil {
		t.Fatal(err)
	}
	orig := rec.Records()
	if len(back) != len(orig) {
		t.Fatalf("expected %d records, got %d", len(orig), len(back))
	}
	for i := range orig {
		if back[i].ID != orig[i].ID || back[i].Flush != orig[i].Flush || back[i].Duration != orig[i].Duration {
			t.Errorf("record %d differs after round trip", i)
		}
	}

	if _, err := ReadJSONL(strings.NewReader("{not json}\n")); err == nil {
		t.Error("expected a decode error")
	}
}
