package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler tracks wall-clock CPU scopes per frame plus named counters
// (chunk rebuilds, packed nodes, primitives). Scope timings are smoothed
// over frames so the readout does not flicker.
type Profiler struct {
	order  []string
	start  map[string]time.Time
	smooth map[string]float64 // milliseconds, exponentially smoothed
	counts map[string]int
}

const profilerSmoothing = 0.9

func NewProfiler() *Profiler {
	return &Profiler{
		start:  make(map[string]time.Time),
		smooth: make(map[string]float64),
		counts: make(map[string]int),
	}
}

func (p *Profiler) Begin(name string) {
	if _, seen := p.smooth[name]; !seen {
		p.order = append(p.order, name)
		p.smooth[name] = 0
	}
	p.start[name] = time.Now()
}

func (p *Profiler) End(name string) {
	started, ok := p.start[name]
	if !ok {
		return
	}
	ms := float64(time.Since(started).Microseconds()) / 1000.0
	p.smooth[name] = p.smooth[name]*profilerSmoothing + ms*(1-profilerSmoothing)
}

// Scope times fn under name.
func (p *Profiler) Scope(name string, fn func()) {
	p.Begin(name)
	fn()
	p.End(name)
}

func (p *Profiler) SetCount(name string, count int) {
	p.counts[name] = count
}

// Millis returns the smoothed duration of a scope.
func (p *Profiler) Millis(name string) float64 {
	return p.smooth[name]
}

func (p *Profiler) String() string {
	var sb strings.Builder
	sb.WriteString("timings (cpu):\n")
	for _, name := range p.order {
		sb.WriteString(fmt.Sprintf("  %-18s %6.2f ms\n", name, p.smooth[name]))
	}
	if len(p.counts) > 0 {
		keys := make([]string, 0, len(p.counts))
		for k := range p.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("counters:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %-18s %d\n", k, p.counts[k]))
		}
	}
	return sb.String()
}
