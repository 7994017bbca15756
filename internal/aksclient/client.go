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

// Package aksclient defines the capability interfaces a diagnostic
// handler composes against one cluster, plus their concrete
// Kubernetes-API and Azure-control-plane implementations. Every method is
// safe to call concurrently across independent clusters.
package aksclient

import (
	"context"
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// NodePodSource lists the raw node and pod inventory of a cluster.
type NodePodSource interface {
	ListNodes(ctx context.Context) ([]akstypes.NodeRecord, error)
	ListPods(ctx context.Context, namespace string) ([]akstypes.PodRecord, error)
}

// MetricsUnavailableError distinguishes a metrics-server outage from any
// other NodePodSource/EventSource failure so callers can degrade gracefully
// instead of failing the whole tool invocation.
type MetricsUnavailableError struct {
	Cause error
}

func (e *MetricsUnavailableError) Error() string {
	return "metrics endpoint not reachable"
}

func (e *MetricsUnavailableError) Unwrap() error { return e.Cause }

// NodeMetric is one node's current resource usage.
type NodeMetric struct {
	Name          string
	CPUMillicores int64
	MemoryBytes   int64
}

// MetricsSource lists live node resource usage from the metrics-server
// aggregated API.
type MetricsSource interface {
	ListNodeMetrics(ctx context.Context) ([]NodeMetric, error)
}

// EventSource lists node and pod lifecycle events.
type EventSource interface {
	ListNodeEvents(ctx context.Context) ([]akstypes.UpgradeEvent, error)
	ListPodEvents(ctx context.Context, namespace string) ([]PodEvent, error)
}

// PodEvent is one Kubernetes event scoped to a pod.
type PodEvent struct {
	Namespace string
	PodName   string
	Reason    string
	Message   string
	Timestamp time.Time
}

// PolicySource lists PodDisruptionBudgets with enough live state to
// compute satisfiability.
type PolicySource interface {
	ListPDBs(ctx context.Context) ([]akstypes.PdbRecord, error)
}

// PoolVersion is one node pool's orchestrator version state.
type PoolVersion struct {
	Name           string
	CurrentVersion string // empty if unknown mid-upgrade
	TargetVersion  string // non-empty only while actively upgrading
	IsUpgrading    bool
}

// ClusterDescription is the control-plane + per-pool version snapshot.
type ClusterDescription struct {
	ControlPlaneVersion string // empty if unknown mid-upgrade
	Pools               []PoolVersion
}

// VersionSupport is the support window for one Kubernetes version.
type VersionSupport struct {
	Version         string
	EndOfSupport    time.Time
	HasEndOfSupport bool
}

// UpgradeProfile is the set of versions a cluster may upgrade to, with
// their support status.
type UpgradeProfile struct {
	AvailableUpgrades []string
	Support           []VersionSupport
}

// ControlPlaneSource talks to the managed-cloud control plane.
type ControlPlaneSource interface {
	DescribeCluster(ctx context.Context) (ClusterDescription, error)
	UpgradeProfile(ctx context.Context) (UpgradeProfile, error)
	HistoricalUpgrades(ctx context.Context, limit int) ([]akstypes.HistoricalUpgrade, error)
}

// Factory lazily builds the five capability clients for one resolved
// cluster. Implementations must guard construction so two concurrent
// first calls cannot race into duplicate or half-initialized clients.
type Factory interface {
	NodePodSource(ctx context.Context, cluster akstypes.ClusterConfig) (NodePodSource, error)
	MetricsSource(ctx context.Context, cluster akstypes.ClusterConfig) (MetricsSource, error)
	EventSource(ctx context.Context, cluster akstypes.ClusterConfig) (EventSource, error)
	PolicySource(ctx context.Context, cluster akstypes.ClusterConfig) (PolicySource, error)
	ControlPlaneSource(ctx context.Context, cluster akstypes.ClusterConfig) (ControlPlaneSource, error)
}
