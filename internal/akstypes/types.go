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

// Package akstypes holds the data model shared across the registry, the
// fan-out engine, the API clients, and the diagnostic classifiers. Every
// record here is constructed fresh inside a single tool invocation and
// discarded once the envelope is serialized; nothing is cached across
// invocations.
package akstypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClusterConfig is the resolved identity of one managed cluster. It is
// immutable once loaded from the cluster map.
type ClusterConfig struct {
	ClusterID      string `yaml:"-" json:"cluster_id"`
	Environment    string `yaml:"environment" json:"environment"`
	Region         string `yaml:"region" json:"region"`
	SubscriptionID string `yaml:"subscription_id" json:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group" json:"resource_group"`
	ClusterName    string `yaml:"cluster_name" json:"cluster_name"`
	KubeContext    string `yaml:"kube_context" json:"kube_context"`
}

// ThresholdBundle is the set of configurable severity thresholds, sourced
// from environment variables at process start and immutable thereafter.
type ThresholdBundle struct {
	CPUWarningPercent     float64
	CPUCriticalPercent    float64
	MemoryWarningPercent  float64
	MemoryCriticalPercent float64
	PendingPodsWarning    int
	PendingPodsCritical   int
	UpgradeAnomaly        time.Duration
}

// ToolError is one entry in an envelope's errors list. Error is always
// scrubbed before it reaches the caller; Source is a stable taxonomy tag.
type ToolError struct {
	Error       string `json:"error"`
	Source      string `json:"source"`
	Cluster     string `json:"cluster,omitempty"`
	PartialData bool   `json:"partial_data"`
}

const (
	SourceCoreAPI       = "core-api"
	SourceMetricsAPI    = "metrics-api"
	SourceEventsAPI     = "events-api"
	SourcePolicyAPI     = "policy-api"
	SourceCloudAPI      = "cloud-api"
	SourceCloudAuditLog = "cloud-audit-log"
	SourceConfig        = "config"
	SourceValidation    = "validation"
	SourceCancelled     = "cancelled"
)

// NodeRecord is a read-only snapshot of one cluster node.
type NodeRecord struct {
	Name              string
	Pool              string
	Unschedulable     bool
	AllocatableCPU    int64 // millicores
	AllocatableMemory int64 // bytes
	Version           string
	Age               time.Duration
}

// ContainerStatus is a read-only snapshot of one container within a pod.
// WaitingReason and LastTerminatedReason are mutually exclusive in practice:
// CrashLoopBackOff, ImagePullBackOff, ErrImagePull, and
// CreateContainerConfigError surface as a waiting reason while Kubernetes
// retries the container; OOMKilled, Error, and Completed surface as a
// terminated reason once a run has actually ended.
type ContainerStatus struct {
	Name                  string
	Ready                 bool
	RestartCount          int32
	WaitingReason         string
	WaitingMessage        string
	LastTerminatedReason  string
	LastTerminatedMessage string
	MemoryLimit           int64 // bytes, 0 if unset
}

// PodRecord is a read-only snapshot of one pod.
type PodRecord struct {
	Namespace     string
	Name          string
	Phase         string
	Node          string
	Labels        map[string]string
	Containers    []ContainerStatus
	CPURequest    int64 // millicores
	MemoryRequest int64 // bytes
	OwnerKind     string
}

// PdbRecord is a read-only snapshot of one PodDisruptionBudget, with
// disruptions_allowed always computed from the live ready count.
type PdbRecord struct {
	Namespace       string
	Name            string
	Selector        map[string]string
	MinAvailable    *IntOrPercent
	MaxUnavailable  *IntOrPercent
	CurrentReady    int32
	DesiredReplicas int32
}

// DisruptionsAllowed recomputes the PDB's live disruption budget from
// CurrentReady and the parsed budget fields; it never trusts a cached
// status value. A max_unavailable budget allows evictions only for the
// replicas still ready above the implied floor (desired minus
// max_unavailable), so a degraded workload can exhaust it before any
// eviction happens.
func (p PdbRecord) DisruptionsAllowed() int32 {
	var allowed int32
	switch {
	case p.MaxUnavailable != nil:
		allowed = p.CurrentReady - (p.DesiredReplicas - p.MaxUnavailable.Resolve(p.DesiredReplicas))
	case p.MinAvailable != nil:
		allowed = p.CurrentReady - p.MinAvailable.Resolve(p.DesiredReplicas)
	default:
		allowed = p.CurrentReady
	}
	if allowed < 0 {
		return 0
	}
	return allowed
}

// IntOrPercent mirrors Kubernetes' intstr.IntOrString semantics for PDB
// min_available / max_unavailable fields, which may be an absolute count or
// a percentage of desired replicas.
type IntOrPercent struct {
	IsPercent bool
	Value     int32 // absolute count, or percentage 0-100
}

// Resolve returns the absolute value against desiredReplicas.
func (p *IntOrPercent) Resolve(desiredReplicas int32) int32 {
	if p == nil {
		return 0
	}
	if !p.IsPercent {
		return p.Value
	}
	return int32((int64(p.Value)*int64(desiredReplicas) + 99) / 100)
}

// UpgradeEventKind enumerates the node-lifecycle events the event source
// reports during an upgrade.
type UpgradeEventKind string

const (
	EventNodeUpgrade  UpgradeEventKind = "NodeUpgrade"
	EventNodeReady    UpgradeEventKind = "NodeReady"
	EventNodeNotReady UpgradeEventKind = "NodeNotReady"
)

// UpgradeEvent is one node-lifecycle event, monotonically sorted per node
// by the event source.
type UpgradeEvent struct {
	Kind      UpgradeEventKind
	Node      string
	Timestamp time.Time
	Reason    string
	Message   string
}

// HistoricalUpgrade is one completed upgrade run recorded in the
// control-plane audit log.
type HistoricalUpgrade struct {
	Start             time.Time
	End               time.Time
	SourceVersion     string
	TargetVersion     string
	NodeCount         int
	AggregateDuration time.Duration
}

// Pressure is a totally ordered severity level.
type Pressure int

const (
	PressureOK Pressure = iota
	PressureWarning
	PressureCritical
)

func (p Pressure) String() string {
	switch p {
	case PressureOK:
		return "ok"
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (p Pressure) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *Pressure) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "ok":
		*p = PressureOK
	case "warning":
		*p = PressureWarning
	case "critical":
		*p = PressureCritical
	default:
		return fmt.Errorf("unknown pressure level %q", s)
	}
	return nil
}

// MaxPressure returns the higher-severity of the two pressure levels.
func MaxPressure(a, b Pressure) Pressure {
	if b > a {
		return b
	}
	return a
}

// NodeState is the exhaustive, closed set of states a node may occupy
// during an active upgrade.
type NodeState string

const (
	NodeUpgraded   NodeState = "upgraded"
	NodeUpgrading  NodeState = "upgrading"
	NodeCordoned   NodeState = "cordoned"
	NodePDBBlocked NodeState = "pdb_blocked"
	NodePending    NodeState = "pending"
	NodeStalled    NodeState = "stalled"
)

// FailureCategory is the exhaustive pod-failure taxonomy.
type FailureCategory string

const (
	FailureScheduling FailureCategory = "scheduling"
	FailureRuntime    FailureCategory = "runtime"
	FailureRegistry   FailureCategory = "registry"
	FailureConfig     FailureCategory = "config"
	FailureUnknown    FailureCategory = "unknown"
)

// AllClusters is the sentinel cluster argument meaning "fan out to every
// configured cluster."
const AllClusters = "all"
