// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package upgradeduration estimates how long a pool's current upgrade run
// is taking, from live node events, and compares it against historical
// statistics pulled from the control-plane audit log. The two sources are
// never blended into the same statistic.
package upgradeduration

import (
	"math"
	"sort"
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// CurrentRun is the live per-node timing derived from this run's events.
// TotalSeconds is the cumulative sum of completed per-node durations;
// WallClockSeconds is the run's elapsed time from its earliest NodeUpgrade
// event, which is the figure anomaly detection uses. Summed per-node
// durations overcount parallel node drains and are never compared against
// the anomaly threshold.
type CurrentRun struct {
	NodeCount        int     `json:"node_count"`
	MinSeconds       float64 `json:"min_seconds"`
	MaxSeconds       float64 `json:"max_seconds"`
	MeanSeconds      float64 `json:"mean_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
	WallClockSeconds float64 `json:"wall_clock_seconds"`
}

// HistoricalStats summarizes up to history_count records from the audit
// log; sample_size names the number of records actually used, which may
// be fewer than requested if the retention window does not hold enough.
type HistoricalStats struct {
	SampleSize  int     `json:"sample_size"`
	MeanSeconds float64 `json:"mean_seconds"`
	P90Seconds  float64 `json:"p90_seconds"`
	MinSeconds  float64 `json:"min_seconds"`
	MaxSeconds  float64 `json:"max_seconds"`
	Gap         bool    `json:"gap"` // true if fewer records existed than requested
}

// Result is the full duration report for one pool.
type Result struct {
	Current    CurrentRun      `json:"current_run"`
	Historical HistoricalStats `json:"historical"`
	Anomaly    bool            `json:"anomaly"`
}

// nodeDurations pairs each node with the (NodeUpgrade, NodeReady) span found in
// its events. Nodes without a completed pair are excluded from the run's
// per-node statistics, since their duration is not yet known.
func nodeDurations(events []akstypes.UpgradeEvent) []float64 {
	starts := make(map[string]time.Time)
	var durations []float64
	for _, e := range events {
		switch e.Kind {
		case akstypes.EventNodeUpgrade:
			if t, ok := starts[e.Node]; !ok || e.Timestamp.Before(t) {
				starts[e.Node] = e.Timestamp
			}
		case akstypes.EventNodeReady:
			if start, ok := starts[e.Node]; ok {
				durations = append(durations, e.Timestamp.Sub(start).Seconds())
				delete(starts, e.Node)
			}
		}
	}
	return durations
}

// Classify computes current-run and historical statistics and flags the
// current run as anomalous when its wall-clock elapsed time exceeds
// threshold. now supplies the single clock read for a run still in flight.
func Classify(events []akstypes.UpgradeEvent, historical []akstypes.HistoricalUpgrade, requestedHistoryCount int, threshold time.Duration, now time.Time) Result {
	durations := nodeDurations(events)

	current := CurrentRun{NodeCount: len(durations)}
	if len(durations) > 0 {
		current.MinSeconds = durations[0]
		current.MaxSeconds = durations[0]
		sum := 0.0
		for _, d := range durations {
			sum += d
			if d < current.MinSeconds {
				current.MinSeconds = d
			}
			if d > current.MaxSeconds {
				current.MaxSeconds = d
			}
		}
		current.TotalSeconds = sum
		current.MeanSeconds = sum / float64(len(durations))
	}
	current.WallClockSeconds = wallClockElapsed(events, now).Seconds()

	result := Result{Current: current}
	result.Historical = historicalStats(historical, requestedHistoryCount)
	result.Anomaly = wallClockElapsed(events, now) > threshold
	return result
}

// wallClockElapsed measures the run from its earliest NodeUpgrade event to
// either its last NodeReady event (every started node finished) or now (at
// least one node is still mid-upgrade).
func wallClockElapsed(events []akstypes.UpgradeEvent, now time.Time) time.Duration {
	var earliestStart, latestReady time.Time
	started := make(map[string]bool)
	finished := make(map[string]bool)
	for _, e := range events {
		switch e.Kind {
		case akstypes.EventNodeUpgrade:
			started[e.Node] = true
			if earliestStart.IsZero() || e.Timestamp.Before(earliestStart) {
				earliestStart = e.Timestamp
			}
		case akstypes.EventNodeReady:
			finished[e.Node] = true
			if e.Timestamp.After(latestReady) {
				latestReady = e.Timestamp
			}
		}
	}
	if earliestStart.IsZero() {
		return 0
	}
	end := now
	allFinished := true
	for node := range started {
		if !finished[node] {
			allFinished = false
			break
		}
	}
	if allFinished && !latestReady.IsZero() {
		end = latestReady
	}
	if end.Before(earliestStart) {
		return 0
	}
	return end.Sub(earliestStart)
}

func historicalStats(records []akstypes.HistoricalUpgrade, requested int) HistoricalStats {
	stats := HistoricalStats{SampleSize: len(records), Gap: len(records) < requested}
	if len(records) == 0 {
		return stats
	}

	durations := make([]float64, len(records))
	for i, r := range records {
		durations[i] = r.AggregateDuration.Seconds()
	}
	sort.Float64s(durations)

	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	stats.MeanSeconds = sum / float64(len(durations))
	stats.MinSeconds = durations[0]
	stats.MaxSeconds = durations[len(durations)-1]

	idx := int(math.Ceil(0.9*float64(len(durations)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(durations) {
		idx = len(durations) - 1
	}
	stats.P90Seconds = durations[idx]

	return stats
}
