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

// Package pressure classifies each node pool's resource pressure from
// allocatable capacity, pod requests, pending pods, and (optionally) live
// metrics. It is pure: every input is already collected; nothing here
// performs I/O.
package pressure

import (
	"fmt"
	"sort"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

const unknownPool = "unknown-pool"

// PoolResult is one pool's pressure assessment.
type PoolResult struct {
	Pool              string            `json:"pool"`
	Pressure          akstypes.Pressure `json:"pressure"`
	CPURatio          float64           `json:"cpu_request_ratio"`
	MemoryRatio       float64           `json:"memory_request_ratio"`
	PendingPods       int               `json:"pending_pods"`
	AllocatableCPU    int64             `json:"allocatable_cpu_millicores"`
	AllocatableMemory int64             `json:"allocatable_memory_bytes"`
}

// Result is the full pressure classification for one cluster.
type Result struct {
	Pools              []PoolResult `json:"pools"`
	ClusterPendingPods int          `json:"cluster_pending_pods"` // pods pending with no node assignment, plus pods on a node not in the node list
	Summary            string       `json:"summary"`
	UnknownPoolWarning bool         `json:"unknown_pool_warning"`
	MetricsDegraded    bool         `json:"metrics_degraded"`
}

// Classify groups nodes into pools, sums allocatable capacity and pod
// requests per pool, and derives a severity level per pool. Ratios are
// always requests over allocatable. metrics may be nil (retrieval failed),
// in which case MetricsDegraded is set.
func Classify(nodes []akstypes.NodeRecord, pods []akstypes.PodRecord, metrics []aksclient.NodeMetric, thresholds akstypes.ThresholdBundle) Result {
	type accum struct {
		allocCPU, allocMem     int64
		requestCPU, requestMem int64
		pending                int
	}

	pools := make(map[string]*accum)
	nodeToPool := make(map[string]string)
	unknownWarning := false

	for _, n := range nodes {
		pool := n.Pool
		if pool == "" {
			pool = unknownPool
			unknownWarning = true
		}
		nodeToPool[n.Name] = pool
		a, ok := pools[pool]
		if !ok {
			a = &accum{}
			pools[pool] = a
		}
		a.allocCPU += n.AllocatableCPU
		a.allocMem += n.AllocatableMemory
	}

	clusterPending := 0
	for _, p := range pods {
		if p.Phase == "Pending" && p.Node == "" {
			clusterPending++
			continue
		}
		pool, ok := nodeToPool[p.Node]
		if !ok {
			clusterPending++
			continue
		}
		a := pools[pool]
		a.requestCPU += p.CPURequest
		a.requestMem += p.MemoryRequest
		if p.Phase == "Pending" {
			a.pending++
		}
	}

	// The request-ratio is always requests over allocatable; live metrics
	// are not blended into it. Their only role here is the degradation
	// signal: the caller passes nil when metrics retrieval failed (and
	// already attaches the metrics-api ToolError), so MetricsDegraded
	// mirrors that rather than re-deriving it from an empty-vs-nil
	// distinction on the slice itself.
	metricsDegraded := metrics == nil

	var names []string
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := Result{UnknownPoolWarning: unknownWarning, ClusterPendingPods: clusterPending, MetricsDegraded: metricsDegraded}
	underPressure := 0
	for _, name := range names {
		a := pools[name]
		cpuRatio := ratio(a.requestCPU, a.allocCPU)
		memRatio := ratio(a.requestMem, a.allocMem)

		severity := akstypes.MaxPressure(
			akstypes.MaxPressure(severityOf(cpuRatio*100, thresholds.CPUWarningPercent, thresholds.CPUCriticalPercent),
				severityOf(memRatio*100, thresholds.MemoryWarningPercent, thresholds.MemoryCriticalPercent)),
			pendingSeverity(a.pending, thresholds.PendingPodsWarning, thresholds.PendingPodsCritical),
		)
		if severity > akstypes.PressureOK {
			underPressure++
		}

		result.Pools = append(result.Pools, PoolResult{
			Pool:              name,
			Pressure:          severity,
			CPURatio:          cpuRatio,
			MemoryRatio:       memRatio,
			PendingPods:       a.pending,
			AllocatableCPU:    a.allocCPU,
			AllocatableMemory: a.allocMem,
		})
	}

	result.Summary = fmt.Sprintf("%d of %d node pools are under pressure", underPressure, len(names))
	return result
}

func ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

// severityOf compares a percentage against the warning/critical thresholds.
// Both comparisons are inclusive: exactly the warning threshold is warning,
// exactly the critical threshold is critical.
func severityOf(percent, warning, critical float64) akstypes.Pressure {
	switch {
	case percent >= critical:
		return akstypes.PressureCritical
	case percent >= warning:
		return akstypes.PressureWarning
	default:
		return akstypes.PressureOK
	}
}

func pendingSeverity(count, warning, critical int) akstypes.Pressure {
	switch {
	case count > critical:
		return akstypes.PressureCritical
	case count >= warning:
		return akstypes.PressureWarning
	default:
		return akstypes.PressureOK
	}
}
