package stats

import (
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/treerows/internal/rowserver"
)

// Row-count buckets used to split successful calls by response size.
var rowBuckets = []struct {
	label string
	max   int
}{
	{"0", 0},
	{"1-10", 10},
	{"11-100", 100},
	{"101+", -1},
}

func rowBucket(rows int) string {
	for _, b := range rowBuckets {
		if b.max < 0 || rows <= b.max {
			return b.label
		}
	}
	return rowBuckets[len(rowBuckets)-1].label
}

type observation struct {
	at      time.Time
	outcome string
	rows    int
	elapsed time.Duration
}

// Summary aggregates the latencies of one group of get-rows calls.
type Summary struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Snapshot groups recent get-rows latencies by outcome, and successful calls
// additionally by the number of rows returned.
type Snapshot struct {
	Outcomes map[string]Summary `json:"outcomes"`
	Rows     map[string]Summary `json:"rows"`
}

// Latency keeps get-rows observations for a rolling window.
type Latency struct {
	mu     sync.Mutex
	obs    []observation
	window time.Duration
}

func NewLatency(window time.Duration) *Latency {
	if window <= 0 {
		window = time.Hour
	}
	return &Latency{window: window}
}

// ObserveGetRows records one call. Negative durations count as zero.
func (l *Latency) ObserveGetRows(outcome string, rows int, elapsed time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(now)
	l.obs = append(l.obs, observation{at: now, outcome: outcome, rows: rows, elapsed: max(elapsed, 0)})
}

func (l *Latency) Snapshot() Snapshot {
	now := time.Now()
	l.mu.Lock()
	l.expireLocked(now)
	byOutcome := make(map[string][]time.Duration)
	byRows := make(map[string][]time.Duration)
	for _, o := range l.obs {
		byOutcome[o.outcome] = append(byOutcome[o.outcome], o.elapsed)
		if o.outcome == rowserver.OutcomeOK {
			b := rowBucket(o.rows)
			byRows[b] = append(byRows[b], o.elapsed)
		}
	}
	l.mu.Unlock()

	snap := Snapshot{
		Outcomes: make(map[string]Summary, len(byOutcome)),
		Rows:     make(map[string]Summary, len(byRows)),
	}
	for k, v := range byOutcome {
		snap.Outcomes[k] = summarize(v)
	}
	for k, v := range byRows {
		snap.Rows[k] = summarize(v)
	}
	return snap
}

// expireLocked drops observations older than the window. Observations are
// appended in time order, so the expired ones form a prefix.
func (l *Latency) expireLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.obs) && l.obs[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.obs = slices.Delete(l.obs, 0, i)
	}
}

func summarize(ds []time.Duration) Summary {
	if len(ds) == 0 {
		return Summary{}
	}
	ms := make([]float64, len(ds))
	var total float64
	for i, d := range ds {
		ms[i] = float64(d.Milliseconds())
		total += ms[i]
	}
	slices.Sort(ms)
	return Summary{
		Count: len(ms),
		MinMs: int64(ms[0]),
		MaxMs: int64(ms[len(ms)-1]),
		AvgMs: total / float64(len(ms)),
		P50Ms: quantile(ms, 0.50),
		P95Ms: quantile(ms, 0.95),
		P99Ms: quantile(ms, 0.99),
	}
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}
