package inspect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vango-dev/observ/pkg/observ"
)

// DefaultCapacity is the number of flushes a Recorder keeps when created
// with a non-positive capacity.
const DefaultCapacity = 256

// maxRunsPerRecord bounds the runs kept in one record.
const maxRunsPerRecord = 64

// Run is one observer execution inside a recorded flush.
type Run struct {
	Observer uint64        `json:"observer"`
	Name     string        `json:"name,omitempty"`
	Selector bool          `json:"selector,omitempty"`
	Round    int           `json:"round"`
	Deps     int           `json:"deps"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Record describes one finished flush.
type Record struct {
	ID       string        `json:"id"`
	Session  string        `json:"session"`
	Flush    uint64        `json:"flush"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Rounds   int           `json:"rounds"`
	Writes   int           `json:"writes"`
	Notified int           `json:"notified"`
	Runs     int           `json:"runs"`
	Skipped  int           `json:"skipped"`
	Error    string        `json:"error,omitempty"`

	// Observers lists the runs of the flush, truncated when there are
	// many.
	Observers []Run `json:"observers,omitempty"`
	Truncated bool  `json:"truncated,omitempty"`
}

// Recorder keeps the most recent flush records. It implements observ.Hooks
// and is safe for concurrent use.
type Recorder struct {
	session string

	mu      sync.Mutex
	ring    []Record
	next    int
	full    bool
	open    map[uint64][]Run
	subs    map[int]func(Record)
	subSeq  int
	dropped uint64
}

// NewRecorder creates a recorder holding up to capacity flushes.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		session: ulid.Make().String(),
		ring:    make([]Record, capacity),
		open:    make(map[uint64][]Run),
		subs:    make(map[int]func(Record)),
	}
}

// Session returns the recorder's session id, a ULID so traces sort by
// creation time.
func (r *Recorder) Session() string {
	return r.session
}

// FlushStarted implements observ.Hooks.
func (r *Recorder) FlushStarted(id uint64) {
	r.mu.Lock()
	r.open[id] = nil
	r.mu.Unlock()
}

// ObserverRan implements observ.Hooks. Runs outside a flush are ignored.
func (r *Recorder) ObserverRan(s observ.RunStats) {
	if s.Flush == 0 {
		return
	}
	run := Run{
		Observer: s.Observer,
		Name:     s.Name,
		Selector: s.Selector,
		Round:    s.Round,
		Deps:     s.Deps,
		Duration: s.Duration,
	}
	if s.Err != nil {
		run.Error = s.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	runs, ok := r.open[s.Flush]
	if !ok {
		return
	}
	r.open[s.Flush] = append(runs, run)
}

// FlushFinished implements observ.Hooks.
func (r *Recorder) FlushFinished(s observ.FlushStats) {
	rec := Record{
		ID:       ulid.Make().String(),
		Session:  r.session,
		Flush:    s.ID,
		Started:  s.Started,
		Duration: s.Duration,
		Rounds:   s.Rounds,
		Writes:   s.Writes,
		Notified: s.Notified,
		Runs:     s.Runs,
		Skipped:  s.Skipped,
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}

	r.mu.Lock()
	runs := r.open[s.ID]
	delete(r.open, s.ID)
	if len(runs) > maxRunsPerRecord {
		runs = runs[:maxRunsPerRecord]
		rec.Truncated = true
	}
	rec.Observers = runs

	if r.full {
		r.dropped++
	}
	r.ring[r.next] = rec
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
	subs := make([]func(Record), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(rec)
	}
}

// Records returns the kept records, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Record(nil), r.ring[:r.next]...)
	}
	out := make([]Record, 0, len(r.ring))
	out = append(out, r.ring[r.next:]...)
	return append(out, r.ring[:r.next]...)
}

// Len returns the number of kept records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.ring)
	}
	return r.next
}

// Dropped returns how many records were overwritten.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Subscribe calls fn with every later record until the returned function
// is called. fn runs on the flushing goroutine and must not block.
func (r *Recorder) Subscribe(fn func(Record)) (unsubscribe func()) {
	r.mu.Lock()
	r.subSeq++
	id := r.subSeq
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// WriteJSONL writes the kept records as JSON lines.
func (r *Recorder) WriteJSONL(w io.Writer) error {
	return WriteJSONL(w, r.Records())
}

// WriteJSONL writes records as JSON lines.
func WriteJSONL(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].ID, err)
		}
	}
	return nil
}

// ReadJSONL reads records written by WriteJSONL. Blank lines are skipped.
func ReadJSONL(rd io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
