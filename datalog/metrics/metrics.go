// Package metrics collects timers, counters and histograms for chase runs.
package metrics

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Well-known metric names.
const (
	ChaseRound      = "chase_round"       // timer, accumulated over rounds
	ChaseAtomsAdded = "chase_atoms_added" // counter
	ChaseTriggers   = "chase_triggers"    // counter, homomorphisms that led to an application
	ChaseRoundAtoms = "chase_round_atoms" // histogram of atoms added per round
	SearchCount     = "homomorphism_searches"
	ParseFiles      = "dlgp_parse"
	StoreLoad       = "store_load"
)

// Metrics is a named collection of timers, histograms and counters.
type Metrics interface {
	Timer(name string) Timer
	Histogram(name string) Histogram
	Counter(name string) Counter
	All() map[string]any
	Clear()
	json.Marshaler
}

type metrics struct {
	mtx        sync.Mutex
	timers     map[string]Timer
	histograms map[string]Histogram
	counters   map[string]Counter
}

// New returns an empty collection.
func New() Metrics {
	return &metrics{
		timers:     map[string]Timer{},
		histograms: map[string]Histogram{},
		counters:   map[string]Counter{},
	}
}

// NoOp returns a collection that records nothing.
func NoOp() Metrics {
	return noOpInstance
}

func (m *metrics) String() string {
	all := m.All()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf := make([]string, len(keys))
	for i, k := range keys {
		buf[i] = fmt.Sprintf("%v:%v", k, all[k])
	}
	return strings.Join(buf, " ")
}

func (m *metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.All())
}

func (m *metrics) Timer(name string) Timer {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	t, ok := m.timers[name]
	if !ok {
		t = &timer{}
		m.timers[name] = t
	}
	return t
}

func (m *metrics) Histogram(name string) Histogram {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		h = newHistogram()
		m.histograms[name] = h
	}
	return h
}

func (m *metrics) Counter(name string) Counter {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &counter{}
		m.counters[name] = c
	}
	return c
}

// All returns every metric keyed timer_<name>_ns, histogram_<name> or
// counter_<name>.
func (m *metrics) All() map[string]any {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	result := make(map[string]any, len(m.timers)+len(m.histograms)+len(m.counters))
	for name, t := range m.timers {
		result["timer_"+name+"_ns"] = t.Value()
	}
	for name, h := range m.histograms {
		result["histogram_"+name] = h.Value()
	}
	for name, c := range m.counters {
		result["counter_"+name] = c.Value()
	}
	return result
}

func (m *metrics) Clear() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.timers = map[string]Timer{}
	m.histograms = map[string]Histogram{}
	m.counters = map[string]Counter{}
}

// Timer is a restartable timer that accumulates elapsed time.
type Timer interface {
	Value() any
	Int64() int64
	Start()
	// Stop accumulates the nanoseconds since the last Start and returns them.
	Stop() int64
}

type timer struct {
	mtx   sync.Mutex
	start time.Time
	value int64
}

func (t *timer) Start() {
	t.mtx.Lock()
	t.start = time.Now()
	t.mtx.Unlock()
}

func (t *timer) Stop() int64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	var delta int64
	if !t.start.IsZero() {
		delta = time.Since(t.start).Nanoseconds()
		t.value += delta
		t.start = time.Time{}
	}
	return delta
}

func (t *timer) Value() any { return t.Int64() }

func (t *timer) Int64() int64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.value
}

// Histogram summarises a stream of values with fixed percentiles.
type Histogram interface {
	Value() any
	Update(int64)
}

type histogram struct {
	hist gometrics.Histogram
}

func newHistogram() Histogram {
	return &histogram{gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))}
}

func (h *histogram) Update(v int64) { h.hist.Update(v) }

func (h *histogram) Value() any {
	snap := h.hist.Snapshot()
	p := snap.Percentiles([]float64{0.5, 0.9, 0.99})
	return map[string]any{
		"count":  snap.Count(),
		"min":    snap.Min(),
		"max":    snap.Max(),
		"mean":   snap.Mean(),
		"median": p[0],
		"90%":    p[1],
		"99%":    p[2],
	}
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Value() any
	Incr()
	Add(n uint64)
}

type counter struct {
	c atomic.Uint64
}

func (c *counter) Incr()        { c.c.Add(1) }
func (c *counter) Add(n uint64) { c.c.Add(n) }
func (c *counter) Value() any   { return c.c.Load() }

type noOpMetrics struct{}
type noOpTimer struct{}
type noOpHistogram struct{}
type noOpCounter struct{}

var noOpInstance = &noOpMetrics{}

func (*noOpMetrics) Timer(string) Timer         { return noOpTimer{} }
func (*noOpMetrics) Histogram(string) Histogram { return noOpHistogram{} }
func (*noOpMetrics) Counter(string) Counter     { return noOpCounter{} }
func (*noOpMetrics) All() map[string]any        { return nil }
func (*noOpMetrics) Clear()                     {}
func (*noOpMetrics) MarshalJSON() ([]byte, error) {
	return []byte(`{}`), nil
}

func (noOpTimer) Start()       {}
func (noOpTimer) Stop() int64  { return 0 }
func (noOpTimer) Value() any   { return 0 }
func (noOpTimer) Int64() int64 { return 0 }

func (noOpHistogram) Update(int64) {}
func (noOpHistogram) Value() any   { return nil }

func (noOpCounter) Incr()      {}
func (noOpCounter) Add(uint64) {}
func (noOpCounter) Value() any { return 0 }
