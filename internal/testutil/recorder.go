package testutil

import (
	"sync"
	"time"
)

// ExecutionRecord holds the start and end times of one execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder collects execution records and an ordered event log from
// concurrently running work.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
	log     []string
	calls   map[string]int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		records: make(map[string]*ExecutionRecord),
		calls:   make(map[string]int),
	}
}

// Start records that work on name began.
func (r *Recorder) Start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[name] = &ExecutionRecord{Start: time.Now()}
	r.log = append(r.log, "start "+name)
	r.calls[name]++
}

// End records that work on name returned.
func (r *Recorder) End(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[name]; ok {
		rec.End = time.Now()
	}
	r.log = append(r.log, "end "+name)
}

// Log returns a copy of the ordered "start X" / "end X" entries.
func (r *Recorder) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}

// Record returns the execution record for name, if any.
func (r *Recorder) Record(name string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Calls returns how many times work on name started.
func (r *Recorder) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

// IndexOf returns the position of entry in the log, or -1.
func (r *Recorder) IndexOf(entry string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.log {
		if e == entry {
			return i
		}
	}
	return -1
}
