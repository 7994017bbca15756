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

package upgradeprogress

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/registry"
	"github.com/contoso/aks-fleet-mcp/internal/scrub"
)

type fakeFactory struct {
	desc    aksclient.ClusterDescription
	descErr error
	nodes   []akstypes.NodeRecord
	pods    []akstypes.PodRecord
	events  []akstypes.UpgradeEvent
	pdbs    []akstypes.PdbRecord
}

func (f *fakeFactory) NodePodSource(context.Context, akstypes.ClusterConfig) (aksclient.NodePodSource, error) {
	return &fakeNodePodSource{nodes: f.nodes, pods: f.pods}, nil
}

func (f *fakeFactory) MetricsSource(context.Context, akstypes.ClusterConfig) (aksclient.MetricsSource, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFactory) EventSource(context.Context, akstypes.ClusterConfig) (aksclient.EventSource, error) {
	return &fakeEventSource{events: f.events}, nil
}

func (f *fakeFactory) PolicySource(context.Context, akstypes.ClusterConfig) (aksclient.PolicySource, error) {
	return &fakePolicySource{pdbs: f.pdbs}, nil
}

func (f *fakeFactory) ControlPlaneSource(_ context.Context, _ akstypes.ClusterConfig) (aksclient.ControlPlaneSource, error) {
	return &fakeControlPlaneSource{desc: f.desc, descErr: f.descErr}, nil
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

type fakeEventSource struct {
	events []akstypes.UpgradeEvent
}

func (s *fakeEventSource) ListNodeEvents(context.Context) ([]akstypes.UpgradeEvent, error) {
	return s.events, nil
}
func (s *fakeEventSource) ListPodEvents(context.Context, string) ([]aksclient.PodEvent, error) {
	return nil, nil
}

type fakePolicySource struct {
	pdbs []akstypes.PdbRecord
}

func (s *fakePolicySource) ListPDBs(context.Context) ([]akstypes.PdbRecord, error) {
	return s.pdbs, nil
}

type fakeControlPlaneSource struct {
	desc    aksclient.ClusterDescription
	descErr error
}

func (s *fakeControlPlaneSource) DescribeCluster(context.Context) (aksclient.ClusterDescription, error) {
	if s.descErr != nil {
		return aksclient.ClusterDescription{}, s.descErr
	}
	return s.desc, nil
}

func (s *fakeControlPlaneSource) UpgradeProfile(context.Context) (aksclient.UpgradeProfile, error) {
	return aksclient.UpgradeProfile{}, nil
}

func (s *fakeControlPlaneSource) HistoricalUpgrades(context.Context, int) ([]akstypes.HistoricalUpgrade, error) {
	return nil, nil
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

func TestHandlerReportsNoActiveUpgrade(t *testing.T) {
	factory := &fakeFactory{
		desc: aksclient.ClusterDescription{
			Pools: []aksclient.PoolVersion{{Name: "pool1", IsUpgrading: false}},
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
	if len(res.Clusters) != 1 {
		t.Fatalf("Clusters has %d entries, want 1", len(res.Clusters))
	}
	if res.Clusters[0].Data.UpgradeInProgress {
		t.Errorf("UpgradeInProgress = true, want false when no pool is upgrading")
	}
	if res.Clusters[0].Data.PodTransitions != nil {
		t.Errorf("PodTransitions = %+v, want nil when no upgrade is active", res.Clusters[0].Data.PodTransitions)
	}
}

func TestHandlerReportsActiveUpgradeProgress(t *testing.T) {
	now := time.Now()
	factory := &fakeFactory{
		desc: aksclient.ClusterDescription{
			Pools: []aksclient.PoolVersion{{Name: "pool1", IsUpgrading: true, TargetVersion: "1.30.1"}},
		},
		nodes: []akstypes.NodeRecord{
			{Name: "n1", Pool: "pool1", Version: "1.30.1"},
			{Name: "n2", Pool: "pool1", Version: "1.29.2"},
		},
		events: []akstypes.UpgradeEvent{
			{Kind: akstypes.EventNodeUpgrade, Node: "n1", Timestamp: now.Add(-10 * time.Minute)},
			{Kind: akstypes.EventNodeReady, Node: "n1", Timestamp: now.Add(-5 * time.Minute)},
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
	data := res.Clusters[0].Data
	if !data.UpgradeInProgress {
		t.Fatalf("UpgradeInProgress = false, want true")
	}
	if data.TotalNodes != 2 || data.UpgradedNodes != 1 || data.RemainingNodes != 1 {
		t.Errorf("node counters = %+v, want 2/1/1", data)
	}
}

func TestHandlerRejectsInvalidNodePool(t *testing.T) {
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  &fakeFactory{},
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus", NodePool: "UPPER"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "node pool") {
		t.Errorf("Outcome() = (%d, %q), want a single node_pool validation error", count, first)
	}
}

func TestHandlerDegradesOnControlPlaneFailure(t *testing.T) {
	factory := &fakeFactory{descErr: errors.New("control plane unreachable")}
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
	if len(res.Clusters) != 1 || res.Clusters[0].Data.UpgradeInProgress {
		t.Fatalf("Clusters[0].Data = %+v, want a not-in-progress result rather than an aborted handler", res.Clusters)
	}
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "control plane unreachable") {
		t.Errorf("Outcome() = (%d, %q), want the control-plane error reported", count, first)
	}
}
