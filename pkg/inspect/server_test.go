package inspect

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/observ/pkg/observ"
	"github.com/vango-dev/observ/pkg/telemetry"
)

type fixture struct {
	rt   *observ.Runtime
	rec  *Recorder
	node *observ.Node
	srv  *Server
	http *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec := NewRecorder(16)
	rt := observ.NewRuntime(observ.WithHooks(rec, telemetry.NewMetrics(telemetry.WithRegistry(reg))))

	n := rt.NewNode(map[string]any{"a": 1, "b": []any{1, 2}})
	o := rt.NewObserver(func() error {
		n.Get("a")
		n.GetShallow("b")
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Dispose)

	srv := NewServer(rt, rec, ServerConfig{Gatherer: reg})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &fixture{rt: rt, rec: rec, node: n, srv: srv, http: hs}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestServerGraph(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/graph")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var graph []observ.NodeSubscribers
	if err := json.Unmarshal([]byte(body), &graph); err != nil {
		t.Fatal(err)
	}
	if len(graph) != 1 || graph[0].Node != f.node.ID() {
		t.Fatalf("unexpected graph %s", body)
	}
	paths := map[string]bool{}
	for _, p := range graph[0].Paths {
		paths[p.Path] = true
	}
	if !paths["a"] || !paths["b"] {
		t.Errorf("expected subscriptions on a and b, got %s", body)
	}
}

func TestServerStatsAndFlushes(t *testing.T) {
	f := newFixture(t)
	if err := f.node.At("a").Set(2); err != nil {
		t.Fatal(err)
	}

	_, body := f.get(t, "/stats")
	var stats struct {
		Nodes    int    `json:"nodes"`
		Flushes  uint64 `json:"flushes"`
		Session  string `json:"session"`
		Recorded int    `json:"recorded"`
	}
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Nodes != 1 || stats.Flushes != 1 || stats.Recorded != 1 || stats.Session != f.rec.Session() {
		t.Errorf("unexpected stats %s", body)
	}

	_, body = f.get(t, "/flushes")
	var records []Record
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Runs != 1 {
		t.Errorf("unexpected flushes %s", body)
	}

	resp, body := f.get(t, "/flushes.jsonl")
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("unexpected content type %q", ct)
	}
	if back, err := ReadJSONL(strings.NewReader(body)); err != nil || len(back) != 1 {
		t.Errorf("jsonl: %v, %d records", err, len(back))
	}
}

func TestServerMetrics(t *testing.T) {
	f := newFixture(t)
	if err := f.node.At("a").Set(3); err != nil {
		t.Fatal(err)
	}
	_, body := f.get(t, "/metrics")
	if !strings.Contains(body, `observ_flushes_total{status="success"} 1`) {
		t.Errorf("flush counter missing from metrics:\n%s", body)
	}
}

func TestServerEventsStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Event
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != "hello" || hello.Client == "" {
		t.Fatalf("unexpected hello %+v", hello)
	}
	if f.srv.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", f.srv.ClientCount())
	}

	if err := f.node.At("a").Set(4); err != nil {
		t.Fatal(err)
	}
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "flush" || ev.Record == nil || ev.Record.Writes != 1 {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline := time.Now().Add(2 * time.Second)
	for f.srv.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.srv.ClientCount() != 0 {
		t.Error("client not removed after close")
	}
}

func TestServerUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
