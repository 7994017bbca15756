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

// Package podhealth classifies currently-unhealthy pods into a failure
// taxonomy, attaches root-cause context from their most recent event, and
// caps the result at a bounded list while still counting every match.
package podhealth

import (
	"sort"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

const maxSelectedPods = 50

// StatusFilter is the set of pod-status filters the tool accepts.
type StatusFilter string

const (
	StatusPending StatusFilter = "pending"
	StatusFailed  StatusFilter = "failed"
	StatusAll     StatusFilter = "all"
)

// UnhealthyPod is one selected pod with its derived failure category and
// root-cause context.
type UnhealthyPod struct {
	Namespace      string                   `json:"namespace"`
	Name           string                   `json:"name"`
	Phase          string                   `json:"phase"`
	Node           string                   `json:"node"`
	Category       akstypes.FailureCategory `json:"category"`
	RootCause      string                   `json:"root_cause,omitempty"`
	OOMContainer   string                   `json:"oom_container,omitempty"`
	OOMMemoryLimit int64                    `json:"oom_memory_limit_bytes,omitempty"`
	LastEventTime  int64                    `json:"last_event_unix,omitempty"`
}

// Result is the full pod-health classification for one cluster.
type Result struct {
	Pods         []UnhealthyPod                   `json:"pods"`
	TotalMatched int                              `json:"total_matched"`
	Truncated    bool                             `json:"truncated"`
	ByCategory   map[akstypes.FailureCategory]int `json:"by_category"`
}

// Classify selects pods matching namespace and statusFilter, categorizes
// each, and returns up to maxSelectedPods of them sorted Failed-before-
// Pending then by most recent event descending.
func Classify(pods []akstypes.PodRecord, podEvents []aksclient.PodEvent, namespace string, statusFilter StatusFilter) Result {
	latestEvent := make(map[string]aksclient.PodEvent)
	for _, e := range podEvents {
		key := e.Namespace + "/" + e.PodName
		if cur, ok := latestEvent[key]; !ok || e.Timestamp.After(cur.Timestamp) {
			latestEvent[key] = e
		}
	}

	var matched []UnhealthyPod
	byCategory := make(map[akstypes.FailureCategory]int)

	for _, p := range pods {
		if namespace != "" && p.Namespace != namespace {
			continue
		}
		if !isUnhealthy(p) {
			continue
		}
		if !matchesStatusFilter(p, statusFilter) {
			continue
		}

		up := UnhealthyPod{
			Namespace: p.Namespace,
			Name:      p.Name,
			Phase:     p.Phase,
			Node:      p.Node,
			Category:  categorize(p),
		}

		for _, cs := range p.Containers {
			if cs.LastTerminatedReason == "OOMKilled" {
				up.OOMContainer = cs.Name
				up.OOMMemoryLimit = cs.MemoryLimit
				break
			}
		}

		if e, ok := latestEvent[p.Namespace+"/"+p.Name]; ok {
			up.RootCause = e.Message
			up.LastEventTime = e.Timestamp.Unix()
		}

		byCategory[up.Category]++
		matched = append(matched, up)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		pi, pj := phaseRank(matched[i].Phase), phaseRank(matched[j].Phase)
		if pi != pj {
			return pi < pj
		}
		return matched[i].LastEventTime > matched[j].LastEventTime
	})

	result := Result{
		TotalMatched: len(matched),
		ByCategory:   byCategory,
	}
	if len(matched) > maxSelectedPods {
		result.Pods = matched[:maxSelectedPods]
		result.Truncated = true
	} else {
		result.Pods = matched
	}
	return result
}

func phaseRank(phase string) int {
	if phase == "Failed" {
		return 0
	}
	return 1
}

func isUnhealthy(p akstypes.PodRecord) bool {
	if p.Phase == "Pending" || p.Phase == "Failed" {
		return true
	}
	for _, cs := range p.Containers {
		// No readiness qualifier: a container that OOM-killed and then
		// restarted successfully still carries the terminated reason, and
		// still counts as unhealthy.
		if isUnhealthyWaitingReason(cs.WaitingReason) || cs.LastTerminatedReason == "OOMKilled" {
			return true
		}
	}
	return false
}

// isUnhealthyWaitingReason matches the waiting-state reasons Kubernetes
// reports while it keeps retrying a container; OOMKilled is a terminated
// reason and is checked separately.
func isUnhealthyWaitingReason(reason string) bool {
	switch reason {
	case "CrashLoopBackOff", "ImagePullBackOff", "ErrImagePull", "CreateContainerConfigError":
		return true
	default:
		return false
	}
}

func matchesStatusFilter(p akstypes.PodRecord, filter StatusFilter) bool {
	switch filter {
	case StatusPending:
		return p.Phase == "Pending"
	case StatusFailed:
		return p.Phase == "Failed"
	case StatusAll, "":
		return true
	default:
		return true
	}
}

// categorize assigns the failure taxonomy. Unmatched reasons fall back to
// FailureUnknown.
func categorize(p akstypes.PodRecord) akstypes.FailureCategory {
	for _, cs := range p.Containers {
		switch cs.WaitingReason {
		case "CrashLoopBackOff":
			return akstypes.FailureRuntime
		case "ImagePullBackOff", "ErrImagePull":
			return akstypes.FailureRegistry
		case "CreateContainerConfigError":
			return akstypes.FailureConfig
		}
		switch cs.LastTerminatedReason {
		case "OOMKilled", "Error":
			return akstypes.FailureRuntime
		}
	}
	if p.Phase == "Pending" {
		return akstypes.FailureScheduling
	}
	return akstypes.FailureUnknown
}
