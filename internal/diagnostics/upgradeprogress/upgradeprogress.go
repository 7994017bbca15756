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

// Package upgradeprogress is the six-state per-node upgrade classifier: it
// turns nodes, node events, and PDBs for an upgrading pool into a
// per-node state, pool-level counters, and a pod-transitions rollup. It is
// pure — every input is already collected.
package upgradeprogress

import (
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/pdbrisk"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/podhealth"
)

const maxAffectedPods = 20

// NodeProgress is one node's classification within the active upgrade.
type NodeProgress struct {
	Name        string             `json:"name"`
	State       akstypes.NodeState `json:"state"`
	Version     string             `json:"version"`
	BlockingPDB string             `json:"blocking_pdb,omitempty"`
}

// PodTransitions is the rollup of pods affected by in-progress node churn.
type PodTransitions struct {
	PendingCount  int                              `json:"pending_count"`
	FailedCount   int                              `json:"failed_count"`
	ByCategory    map[akstypes.FailureCategory]int `json:"by_category"`
	TotalAffected int                              `json:"total_affected"`
	AffectedPods  []podhealth.UnhealthyPod         `json:"affected_pods"`
}

// Result is the full upgrade-progress report for one cluster's pool.
type Result struct {
	UpgradeInProgress         bool            `json:"upgrade_in_progress"`
	Pool                      string          `json:"pool,omitempty"`
	Nodes                     []NodeProgress  `json:"nodes,omitempty"`
	TotalNodes                int             `json:"total_nodes,omitempty"`
	UpgradedNodes             int             `json:"upgraded_nodes,omitempty"`
	RemainingNodes            int             `json:"remaining_nodes,omitempty"`
	ElapsedSeconds            float64         `json:"elapsed_seconds,omitempty"`
	EstimatedRemainingSeconds float64         `json:"estimated_remaining_seconds,omitempty"`
	Anomaly                   bool            `json:"anomaly"`
	PodTransitions            *PodTransitions `json:"pod_transitions"`
}

// NotInProgress returns the "no active upgrade" result shape: every
// pool-level field is absent and pod_transitions is nil.
func NotInProgress() Result {
	return Result{UpgradeInProgress: false}
}

// nodeEvents groups a pool's NodeUpgrade/NodeReady/NodeNotReady events by
// node name, already sorted per node by the event source.
func nodeEvents(events []akstypes.UpgradeEvent) map[string][]akstypes.UpgradeEvent {
	out := make(map[string][]akstypes.UpgradeEvent)
	for _, e := range events {
		out[e.Node] = append(out[e.Node], e)
	}
	return out
}

func latestKind(events []akstypes.UpgradeEvent) (akstypes.UpgradeEventKind, bool) {
	if len(events) == 0 {
		return "", false
	}
	return events[len(events)-1].Kind, true
}

func hasKind(events []akstypes.UpgradeEvent, kind akstypes.UpgradeEventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func earliestUpgradeEvent(events []akstypes.UpgradeEvent) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, e := range events {
		if e.Kind != akstypes.EventNodeUpgrade {
			continue
		}
		if !found || e.Timestamp.Before(earliest) {
			earliest = e.Timestamp
			found = true
		}
	}
	return earliest, found
}

// affectedNodesForPDB computes the nodes currently hosting a pod matched
// by pdb's selector. The attribution lives here rather than in the API
// client because it cross-references pod and node data that only this
// classification layer holds together.
func affectedNodesForPDB(pdb akstypes.PdbRecord, pods []akstypes.PodRecord) map[string]bool {
	affected := make(map[string]bool)
	for _, p := range pods {
		if p.Namespace != pdb.Namespace || p.Node == "" {
			continue
		}
		if pdbrisk.SelectorMatches(pdb.Selector, p.Labels) {
			affected[p.Node] = true
		}
	}
	return affected
}

// blockedPDB is one PDB whose live disruptions_allowed has dropped to
// zero, along with the nodes it currently affects.
type blockedPDB struct {
	name     string
	affected map[string]bool
}

// Classify computes the per-node states and pool rollup for one actively
// upgrading pool.
func Classify(pool string, targetVersion string, nodes []akstypes.NodeRecord, pods []akstypes.PodRecord, events []akstypes.UpgradeEvent, pdbs []akstypes.PdbRecord, anomalyThreshold time.Duration, now time.Time) Result {
	byNode := nodeEvents(events)

	// Precompute, per blocked PDB, the set of nodes it affects plus whether
	// it is blocked at all — needed for both per-node attribution and the
	// cluster-wide fallback.
	var blockers []blockedPDB
	for _, pdb := range pdbs {
		if pdb.DisruptionsAllowed() == 0 {
			blockers = append(blockers, blockedPDB{name: pdb.Name, affected: affectedNodesForPDB(pdb, pods)})
		}
	}

	earliestRun, haveRun := earliestUpgradeEvent(events)

	var result Result
	result.UpgradeInProgress = true
	result.Pool = pool

	anyPDBBlocked := false
	upgraded := 0

	for _, n := range nodes {
		ne := byNode[n.Name]
		np := NodeProgress{Name: n.Name, Version: n.Version}
		latest, hasEvents := latestKind(ne)

		switch {
		case hasEvents && latest == akstypes.EventNodeReady && n.Version == targetVersion:
			np.State = akstypes.NodeUpgraded
			upgraded++
		case hasKind(ne, akstypes.EventNodeUpgrade) && !hasKind(ne, akstypes.EventNodeReady):
			np.State = akstypes.NodeUpgrading
		case n.Unschedulable && !hasKind(ne, akstypes.EventNodeUpgrade):
			if name, ok := blockerForNode(blockers, n.Name); ok {
				np.State = akstypes.NodePDBBlocked
				np.BlockingPDB = name
				anyPDBBlocked = true
			} else {
				np.State = akstypes.NodeCordoned
			}
		case haveRun && now.Sub(earliestRun) > anomalyThreshold && !hasKind(ne, akstypes.EventNodeReady):
			// Stalled only applies when no PDB block explains the delay. A
			// block on a still-schedulable node cannot make it pdb_blocked
			// (that state requires an unschedulable node), so such a node
			// stays pending rather than stalled.
			name, blocked := blockerForNode(blockers, n.Name)
			switch {
			case blocked && n.Unschedulable:
				np.State = akstypes.NodePDBBlocked
				np.BlockingPDB = name
				anyPDBBlocked = true
			case blocked:
				np.State = akstypes.NodePending
			default:
				np.State = akstypes.NodeStalled
			}
		default:
			np.State = akstypes.NodePending
		}

		result.Nodes = append(result.Nodes, np)
	}

	result.TotalNodes = len(nodes)
	result.UpgradedNodes = upgraded
	result.RemainingNodes = result.TotalNodes - upgraded

	if haveRun {
		result.ElapsedSeconds = now.Sub(earliestRun).Seconds()
		if upgraded > 0 {
			meanPerNode := result.ElapsedSeconds / float64(upgraded)
			result.EstimatedRemainingSeconds = meanPerNode * float64(result.RemainingNodes)
		}
		result.Anomaly = now.Sub(earliestRun) > anomalyThreshold
	}
	if anyPDBBlocked {
		result.Anomaly = false
	}

	result.PodTransitions = rollupPodTransitions(result.Nodes, pods)
	return result
}

// blockerForNode returns the name of the PDB whose affected_nodes list
// includes node, falling back to the first cluster-wide blocker only when
// no node-specific match exists.
func blockerForNode(blockers []blockedPDB, node string) (string, bool) {
	for _, b := range blockers {
		if b.affected[node] {
			return b.name, true
		}
	}
	if len(blockers) > 0 {
		return blockers[0].name, true
	}
	return "", false
}

// rollupPodTransitions gathers pods on nodes in {cordoned, upgrading,
// pdb_blocked, stalled} — deliberately excluding upgraded and pending —
// classifies their failure category, and caps the detail list at 20.
func rollupPodTransitions(nodes []NodeProgress, pods []akstypes.PodRecord) *PodTransitions {
	included := make(map[string]bool)
	for _, n := range nodes {
		switch n.State {
		case akstypes.NodeCordoned, akstypes.NodeUpgrading, akstypes.NodePDBBlocked, akstypes.NodeStalled:
			included[n.Name] = true
		}
	}

	var affectedPods []akstypes.PodRecord
	for _, p := range pods {
		if included[p.Node] {
			affectedPods = append(affectedPods, p)
		}
	}

	classified := podhealth.Classify(affectedPods, nil, "", podhealth.StatusAll)

	t := &PodTransitions{
		ByCategory:    classified.ByCategory,
		TotalAffected: classified.TotalMatched,
	}
	// PendingCount/FailedCount are derived from the full affectedPods set,
	// not classified.Pods: podhealth.Classify caps its detail list at its
	// own internal limit, which would otherwise undercount these relative
	// to TotalAffected/ByCategory once more pods are affected than that cap.
	for _, p := range affectedPods {
		switch p.Phase {
		case "Pending":
			t.PendingCount++
		case "Failed":
			t.FailedCount++
		}
	}
	if len(classified.Pods) > maxAffectedPods {
		t.AffectedPods = classified.Pods[:maxAffectedPods]
	} else {
		t.AffectedPods = classified.Pods
	}
	return t
}
