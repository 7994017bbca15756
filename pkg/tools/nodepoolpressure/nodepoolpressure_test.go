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

package nodepoolpressure

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/registry"
	"github.com/contoso/aks-fleet-mcp/internal/scrub"
)

// fakeFactory implements aksclient.Factory with canned per-cluster sources,
// keyed by cluster ID, and an optional metrics error.
type fakeFactory struct {
	nodes      map[string][]akstypes.NodeRecord
	pods       map[string][]akstypes.PodRecord
	metrics    map[string][]aksclient.NodeMetric
	metricsErr error
}

func (f *fakeFactory) NodePodSource(_ context.Context, cluster akstypes.ClusterConfig) (aksclient.NodePodSource, error) {
	return &fakeNodePodSource{nodes: f.nodes[cluster.ClusterID], pods: f.pods[cluster.ClusterID]}, nil
}

func (f *fakeFactory) MetricsSource(_ context.Context, cluster akstypes.ClusterConfig) (aksclient.MetricsSource, error) {
	return &fakeMetricsSource{metrics: f.metrics[cluster.ClusterID], err: f.metricsErr}, nil
}

func (f *fakeFactory) EventSource(_ context.Context, _ akstypes.ClusterConfig) (aksclient.EventSource, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFactory) PolicySource(_ context.Context, _ akstypes.ClusterConfig) (aksclient.PolicySource, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFactory) ControlPlaneSource(_ context.Context, _ akstypes.ClusterConfig) (aksclient.ControlPlaneSource, error) {
	return nil, errors.New("not implemented")
}

type fakeNodePodSource struct {
	nodes []akstypes.NodeRecord
	pods  []akstypes.PodRecord
}

func (s *fakeNodePodSource) ListNodes(context.Context) ([]akstypes.NodeRecord, error) {
	return s.nodes, nil
}
func (s *fakeNodePodSource) ListPods(context.Context, string) ([]akstypes.PodRecord, error) {
	return s.pods, nil
}

type fakeMetricsSource struct {
	metrics []aksclient.NodeMetric
	err     error
}

func (s *fakeMetricsSource) ListNodeMetrics(context.Context) ([]aksclient.NodeMetric, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.metrics, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	const clusterMap = `
prod-eastus:
  environment: prod
  region: eastus
  subscription_id: 11111111-2222-3333-4444-555555555555
  resource_group: rg-prod-eastus
  cluster_name: aks-prod-eastus
  kube_context: prod-eastus
`
	path := t.TempDir() + "/clusters.yaml"
	if err := os.WriteFile(path, []byte(clusterMap), 0o600); err != nil {
		t.Fatalf("os.WriteFile() returned unexpected error: %v", err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("registry.Load() returned unexpected error: %v", err)
	}
	return reg
}

// decodeResult unmarshals the handler's scrubbed structured output back
// into the tool's result type.
func decodeResult(t *testing.T, raw any) *result {
	t.Helper()
	data, ok := raw.(json.RawMessage)
	if !ok {
		t.Fatalf("handler() structured output type = %T, want json.RawMessage", raw)
	}
	var res result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("json.Unmarshal() returned unexpected error: %v", err)
	}
	return &res
}

func TestHandlerReportsPressureForResolvedCluster(t *testing.T) {
	factory := &fakeFactory{
		nodes: map[string][]akstypes.NodeRecord{
			"prod-eastus": {{Name: "node-1", Pool: "pool1", AllocatableCPU: 1000, AllocatableMemory: 1000}},
		},
		pods: map[string][]akstypes.PodRecord{
			"prod-eastus": {{Namespace: "ns1", Name: "pod-1", Node: "node-1", CPURequest: 950, MemoryRequest: 100}},
		},
		metrics: map[string][]aksclient.NodeMetric{
			"prod-eastus": {{Name: "node-1", CPUMillicores: 500, MemoryBytes: 500}},
		},
	}
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  factory,
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	if len(res.Clusters) != 1 || res.Clusters[0].ClusterID != "prod-eastus" {
		t.Fatalf("Clusters = %+v, want a single prod-eastus entry", res.Clusters)
	}
	if res.Clusters[0].Data.MetricsDegraded {
		t.Errorf("MetricsDegraded = true, want false since metrics were retrieved successfully")
	}
}

func TestHandlerDegradesOnMetricsFailure(t *testing.T) {
	factory := &fakeFactory{
		nodes: map[string][]akstypes.NodeRecord{
			"prod-eastus": {{Name: "node-1", Pool: "pool1", AllocatableCPU: 1000, AllocatableMemory: 1000}},
		},
		pods:       map[string][]akstypes.PodRecord{"prod-eastus": nil},
		metricsErr: errors.New("metrics-server unreachable"),
	}
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  factory,
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	if len(res.Clusters) != 1 {
		t.Fatalf("Clusters has %d entries, want 1 (a degraded result, not a fatal failure)", len(res.Clusters))
	}
	if !res.Clusters[0].Data.MetricsDegraded {
		t.Errorf("MetricsDegraded = false, want true since metrics retrieval failed")
	}
	count, first := res.Outcome()
	if count != 1 {
		t.Fatalf("Outcome() count = %d, want 1 degraded-metrics error recorded", count)
	}
	if !strings.Contains(first, "metrics-server unreachable") {
		t.Errorf("Outcome() first = %q, want it to mention the metrics error", first)
	}
}

// partialFleetFactory fails one cluster's core API while the rest of the
// fleet keeps answering.
type partialFleetFactory struct {
	fakeFactory
	failCluster string
}

func (f *partialFleetFactory) NodePodSource(ctx context.Context, cluster akstypes.ClusterConfig) (aksclient.NodePodSource, error) {
	if cluster.ClusterID == f.failCluster {
		return nil, errors.New("cluster unreachable")
	}
	return f.fakeFactory.NodePodSource(ctx, cluster)
}

func fleetRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	const clusterMap = `
prod-eastus:
  environment: prod
  region: eastus
  subscription_id: 11111111-2222-3333-4444-555555555555
  resource_group: rg-prod-eastus
  cluster_name: aks-prod-eastus
  kube_context: prod-eastus
staging-westus2:
  environment: staging
  region: westus2
  subscription_id: 66666666-7777-8888-9999-aaaaaaaaaaaa
  resource_group: rg-staging-westus2
  cluster_name: aks-staging-westus2
  kube_context: staging-westus2
`
	path := t.TempDir() + "/clusters.yaml"
	if err := os.WriteFile(path, []byte(clusterMap), 0o600); err != nil {
		t.Fatalf("os.WriteFile() returned unexpected error: %v", err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("registry.Load() returned unexpected error: %v", err)
	}
	return reg
}

func TestHandlerFanOutIsolatesClusterFailure(t *testing.T) {
	factory := &partialFleetFactory{
		fakeFactory: fakeFactory{
			nodes: map[string][]akstypes.NodeRecord{
				"prod-eastus": {{Name: "node-1", Pool: "pool1", AllocatableCPU: 1000, AllocatableMemory: 1000}},
			},
			pods:    map[string][]akstypes.PodRecord{"prod-eastus": nil},
			metrics: map[string][]aksclient.NodeMetric{"prod-eastus": {{Name: "node-1"}}},
		},
		failCluster: "staging-westus2",
	}
	deps := &appdeps.Deps{
		Registry: fleetRegistry(t),
		Factory:  factory,
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "all"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	if len(res.Clusters) != 1 || res.Clusters[0].ClusterID != "prod-eastus" {
		t.Fatalf("Clusters = %+v, want the healthy cluster's record to survive the sibling failure", res.Clusters)
	}
	if !res.PartialData {
		t.Errorf("PartialData = false, want true when one cluster failed but usable data remains")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %+v, want exactly one entry for the unreachable cluster", res.Errors)
	}
	e := res.Errors[0]
	if e.Cluster != "staging-westus2" || e.Source != akstypes.SourceCoreAPI || !e.PartialData {
		t.Errorf("Errors[0] = %+v, want a core-api error for staging-westus2 marked partial_data", e)
	}
}

func TestHandlerRejectsUnknownCluster(t *testing.T) {
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  &fakeFactory{},
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "nonexistent"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	if len(res.Clusters) != 0 {
		t.Errorf("Clusters = %+v, want none for an unresolved cluster argument", res.Clusters)
	}
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "unknown cluster") {
		t.Errorf("Outcome() = (%d, %q), want a single unknown-cluster validation error", count, first)
	}
}
