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

// Package pdbrisk evaluates PodDisruptionBudget satisfiability in two
// modes: preflight (would a PDB block any future eviction) and live (is a
// PDB blocking an eviction right now, on an already-cordoned node).
package pdbrisk

import (
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// Mode selects preflight or live evaluation.
type Mode string

const (
	ModePreflight Mode = "preflight"
	ModeLive      Mode = "live"
)

// FlaggedPDB is one PDB preflight determined could block a future eviction.
type FlaggedPDB struct {
	Namespace       string `json:"namespace"`
	Name            string `json:"name"`
	CurrentReady    int32  `json:"current_ready"`
	DesiredReplicas int32  `json:"desired_replicas"`
	Rule            string `json:"rule"`
}

// ActiveBlock is one live eviction block: a specific pod, on a specific
// cordoned node, currently held by a specific PDB.
type ActiveBlock struct {
	PDBNamespace         string  `json:"pdb_namespace"`
	PDBName              string  `json:"pdb_name"`
	Pod                  string  `json:"pod"`
	Node                 string  `json:"node"`
	BlockDurationSeconds float64 `json:"block_duration_seconds"`
}

// PreflightResult is the output of Preflight.
type PreflightResult struct {
	FlaggedPDBs []FlaggedPDB `json:"flagged_pdbs"`
}

// LiveResult is the output of Live.
type LiveResult struct {
	ActiveBlocks   []ActiveBlock `json:"active_blocks"`
	NoActiveBlocks bool          `json:"no_active_blocks"`
}

func blockRule(pdb akstypes.PdbRecord) (string, bool) {
	if pdb.MaxUnavailable != nil && pdb.MaxUnavailable.Resolve(pdb.DesiredReplicas) == 0 {
		return "max_unavailable == 0", true
	}
	if pdb.MinAvailable != nil && pdb.MinAvailable.Resolve(pdb.DesiredReplicas) == pdb.CurrentReady {
		return "min_available == ready_replicas", true
	}
	return "", false
}

// SelectorMatches reports whether labels satisfies selector (a simple
// equality-match selector, the only form PdbRecord.Selector carries).
func SelectorMatches(selector, labels map[string]string) bool {
	if len(selector) == 0 {
		return false
	}
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// Preflight evaluates every PDB (optionally restricted to PDBs whose
// selector matches a pod currently scheduled in nodePool) and flags the
// ones whose max_unavailable resolves to zero or whose min_available equals
// the current ready count.
func Preflight(pdbs []akstypes.PdbRecord, pods []akstypes.PodRecord, nodePoolOfNode map[string]string, nodePool string) PreflightResult {
	result := PreflightResult{}
	for _, pdb := range pdbs {
		if nodePool != "" && !SelectorMatchesPoolPods(pdb, pods, nodePoolOfNode, nodePool) {
			continue
		}
		if rule, blocked := blockRule(pdb); blocked {
			result.FlaggedPDBs = append(result.FlaggedPDBs, FlaggedPDB{
				Namespace:       pdb.Namespace,
				Name:            pdb.Name,
				CurrentReady:    pdb.CurrentReady,
				DesiredReplicas: pdb.DesiredReplicas,
				Rule:            rule,
			})
		}
	}
	return result
}

func SelectorMatchesPoolPods(pdb akstypes.PdbRecord, pods []akstypes.PodRecord, nodePoolOfNode map[string]string, nodePool string) bool {
	for _, p := range pods {
		if nodePoolOfNode[p.Node] != nodePool {
			continue
		}
		if p.Namespace != pdb.Namespace {
			continue
		}
		if SelectorMatches(pdb.Selector, p.Labels) {
			return true
		}
	}
	return false
}

// Live finds, for every cordoned node, the pods it hosts whose governing
// PDB currently has zero disruption budget, and reports the block
// duration measured from the node's cordon event.
func Live(nodes []akstypes.NodeRecord, pods []akstypes.PodRecord, pdbs []akstypes.PdbRecord, cordonTime map[string]time.Time, now time.Time) LiveResult {
	result := LiveResult{}
	for _, n := range nodes {
		if !n.Unschedulable {
			continue
		}
		for _, p := range pods {
			if p.Node != n.Name {
				continue
			}
			for _, pdb := range pdbs {
				if pdb.Namespace != p.Namespace {
					continue
				}
				if !SelectorMatches(pdb.Selector, p.Labels) {
					continue
				}
				if pdb.DisruptionsAllowed() > 0 {
					continue
				}
				duration := time.Duration(0)
				if t, ok := cordonTime[n.Name]; ok {
					duration = now.Sub(t)
				}
				result.ActiveBlocks = append(result.ActiveBlocks, ActiveBlock{
					PDBNamespace:         pdb.Namespace,
					PDBName:              pdb.Name,
					Pod:                  p.Name,
					Node:                 n.Name,
					BlockDurationSeconds: duration.Seconds(),
				})
			}
		}
	}
	result.NoActiveBlocks = len(result.ActiveBlocks) == 0
	return result
}
