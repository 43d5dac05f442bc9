package orchestrator

import (
	"sync"
)

// Telemetry aggregates cache and generation outcomes for operational
// monitoring.
type Telemetry struct {
	mu            sync.Mutex
	requests      int64
	cacheExact    int64
	cacheAdapted  int64
	aiGenerations int64
	failures      int64
	costUSD       float64
	costSavedUSD  float64
	sumSimilarity float64
	simSamples    int64
	sumLatencyMs  int64
}

// TelemetrySnapshot is the read-only aggregate view.
type TelemetrySnapshot struct {
	Requests      int64   `json:"requests"`
	CacheExact    int64   `json:"cache_exact"`
	CacheAdapted  int64   `json:"cache_adapted"`
	AIGenerations int64   `json:"ai_generations"`
	Failures      int64   `json:"failures"`
	HitRate       float64 `json:"hit_rate"`
	CostUSD       float64 `json:"cost_usd"`
	CostSavedUSD  float64 `json:"cost_saved_usd"`
	AvgSimilarity float64 `json:"avg_similarity"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

func (t *Telemetry) record(d *Decision, avgAICostUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
	t.sumLatencyMs += d.LatencyMs
	if d.Similarity > 0 {
		t.sumSimilarity += d.Similarity
		t.simSamples++
	}
	switch d.Source {
	case "cache_exact":
		t.cacheExact++
		t.costSavedUSD += avgAICostUSD
	case "cache_adapted":
		t.cacheAdapted++
		t.costSavedUSD += avgAICostUSD
	default:
		t.aiGenerations++
		t.costUSD += d.CostUSD
	}
}

func (t *Telemetry) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
	t.failures++
}

// Snapshot returns the current aggregates.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := TelemetrySnapshot{
		Requests:      t.requests,
		CacheExact:    t.cacheExact,
		CacheAdapted:  t.cacheAdapted,
		AIGenerations: t.aiGenerations,
		Failures:      t.failures,
		CostUSD:       t.costUSD,
		CostSavedUSD:  t.costSavedUSD,
	}
	if t.requests > 0 {
		snap.HitRate = float64(t.cacheExact+t.cacheAdapted) / float64(t.requests)
		snap.AvgLatencyMs = float64(t.sumLatencyMs) / float64(t.requests)
	}
	if t.simSamples > 0 {
		snap.AvgSimilarity = t.sumSimilarity / float64(t.simSamples)
	}
	return snap
}
