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

package upgradeduration

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
	nodes      []akstypes.NodeRecord
	events     []akstypes.UpgradeEvent
	historical []akstypes.HistoricalUpgrade
	historyErr error
}

func (f *fakeFactory) NodePodSource(context.Context, akstypes.ClusterConfig) (aksclient.NodePodSource, error) {
	return &fakeNodePodSource{nodes: f.nodes}, nil
}

func (f *fakeFactory) MetricsSource(context.Context, akstypes.ClusterConfig) (aksclient.MetricsSource, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFactory) EventSource(context.Context, akstypes.ClusterConfig) (aksclient.EventSource, error) {
	return &fakeEventSource{events: f.events}, nil
}

func (f *fakeFactory) PolicySource(context.Context, akstypes.ClusterConfig) (aksclient.PolicySource, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFactory) ControlPlaneSource(_ context.Context, _ akstypes.ClusterConfig) (aksclient.ControlPlaneSource, error) {
	return &fakeControlPlaneSource{historical: f.historical, historyErr: f.historyErr}, nil
}

type fakeNodePodSource struct {
	nodes []akstypes.NodeRecord
}

func (s *fakeNodePodSource) ListNodes(context.Context) ([]akstypes.NodeRecord, error) {
	return s.nodes, nil
}
func (s *fakeNodePodSource) ListPods(context.Context, string) ([]akstypes.PodRecord, error) {
	return nil, nil
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

type fakeControlPlaneSource struct {
	historical []akstypes.HistoricalUpgrade
	historyErr error
}

func (s *fakeControlPlaneSource) DescribeCluster(context.Context) (aksclient.ClusterDescription, error) {
	return aksclient.ClusterDescription{}, nil
}

func (s *fakeControlPlaneSource) UpgradeProfile(context.Context) (aksclient.UpgradeProfile, error) {
	return aksclient.UpgradeProfile{}, nil
}

func (s *fakeControlPlaneSource) HistoricalUpgrades(context.Context, int) ([]akstypes.HistoricalUpgrade, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.historical, nil
}

func intPtr(v int) *int { return &v }

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

func TestHandlerComputesCurrentAndHistoricalStats(t *testing.T) {
	now := time.Now()
	factory := &fakeFactory{
		nodes: []akstypes.NodeRecord{{Name: "n1", Pool: "pool1"}},
		events: []akstypes.UpgradeEvent{
			{Kind: akstypes.EventNodeUpgrade, Node: "n1", Timestamp: now.Add(-10 * time.Minute)},
			{Kind: akstypes.EventNodeReady, Node: "n1", Timestamp: now.Add(-5 * time.Minute)},
		},
		historical: []akstypes.HistoricalUpgrade{
			{AggregateDuration: 10 * time.Minute},
			{AggregateDuration: 20 * time.Minute},
		},
	}
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  factory,
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus", NodePool: "pool1"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	if len(res.Clusters) != 1 {
		t.Fatalf("Clusters has %d entries, want 1", len(res.Clusters))
	}
	data := res.Clusters[0].Data
	if data.Current.NodeCount != 1 {
		t.Errorf("Current.NodeCount = %d, want 1", data.Current.NodeCount)
	}
	if data.Historical.SampleSize != 2 {
		t.Errorf("Historical.SampleSize = %d, want 2", data.Historical.SampleSize)
	}
}

func TestHandlerRequiresNodePool(t *testing.T) {
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  &fakeFactory{},
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "node_pool is required") {
		t.Errorf("Outcome() = (%d, %q), want a node_pool-required validation error", count, first)
	}
}

func TestHandlerRejectsOutOfRangeHistoryCount(t *testing.T) {
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  &fakeFactory{},
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus", NodePool: "pool1", HistoryCount: intPtr(51)})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "history_count") {
		t.Errorf("Outcome() = (%d, %q), want a history_count validation error", count, first)
	}
}

func TestHandlerRejectsExplicitZeroHistoryCount(t *testing.T) {
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  &fakeFactory{},
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus", NodePool: "pool1", HistoryCount: intPtr(0)})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "history_count") {
		t.Errorf("Outcome() = (%d, %q), want an explicit history_count=0 to be a validation error, not silently defaulted", count, first)
	}
}

func TestHandlerDegradesOnHistoryFailure(t *testing.T) {
	factory := &fakeFactory{
		nodes:      []akstypes.NodeRecord{{Name: "n1", Pool: "pool1"}},
		historyErr: errors.New("audit log unreachable"),
	}
	deps := &appdeps.Deps{
		Registry: testRegistry(t),
		Factory:  factory,
		Scrubber: scrub.New(nil, nil),
		Logger:   zap.NewNop(),
	}

	_, raw, err := handler(deps)(context.Background(), nil, &args{Cluster: "prod-eastus", NodePool: "pool1"})
	if err != nil {
		t.Fatalf("handler() returned unexpected error: %v", err)
	}
	res := decodeResult(t, raw)
	if len(res.Clusters) != 1 {
		t.Fatalf("Clusters has %d entries, want 1 (live timing is still reportable without history)", len(res.Clusters))
	}
	count, first := res.Outcome()
	if count != 1 || !strings.Contains(first, "audit log unreachable") {
		t.Errorf("Outcome() = (%d, %q), want the degraded audit-log error reported", count, first)
	}
}
