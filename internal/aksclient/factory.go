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

package aksclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	gocache "github.com/patrickmn/go-cache"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// clusterClients bundles the lazily-built clients for one cluster.
type clusterClients struct {
	kube *kubeClients
	cp   *cachedControlPlane
}

// LiveFactory is the Factory implementation used in production: it builds
// one kubeClients + azureControlPlane pair per cluster on first use and
// reuses it for the lifetime of the process. Credential acquisition
// (azidentity.NewDefaultAzureCredential) is performed once, globally, since
// a single managed identity or workload identity applies to every cluster
// in the fleet.
type LiveFactory struct {
	workspaceID string

	mu       sync.Mutex
	cred     *azidentity.DefaultAzureCredential
	credErr  error
	credOnce sync.Once

	clients map[string]*clusterClients
}

// NewLiveFactory builds a Factory. workspaceID is the Azure Monitor
// Log Analytics workspace GUID historical upgrade queries run against.
func NewLiveFactory(workspaceID string) *LiveFactory {
	return &LiveFactory{
		workspaceID: workspaceID,
		clients:     make(map[string]*clusterClients),
	}
}

func (f *LiveFactory) credential() (*azidentity.DefaultAzureCredential, error) {
	f.credOnce.Do(func() {
		f.cred, f.credErr = azidentity.NewDefaultAzureCredential(nil)
	})
	return f.cred, f.credErr
}

// entry returns the cached clusterClients for cluster, building it under
// the factory's mutex on first use. The mutex is not re-entrant: credential
// acquisition here (azidentity's DefaultAzureCredential chain) never calls
// back into Factory, so a plain sync.Mutex is sufficient — a re-entrant
// guard would only be required if credential acquisition itself triggered
// another client-construction call through this same factory.
func (f *LiveFactory) entry(cluster akstypes.ClusterConfig) (*clusterClients, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[cluster.ClusterID]; ok {
		return c, nil
	}

	kube, err := newKubeClients(cluster.KubeContext)
	if err != nil {
		return nil, err
	}

	cred, err := f.credential()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire azure credential: %w", err)
	}
	rawCP, err := newAzureControlPlane(cred, cluster, f.workspaceID)
	if err != nil {
		return nil, err
	}

	entry := &clusterClients{
		kube: kube,
		cp:   newCachedControlPlane(rawCP, cluster.ClusterID, gocache.New(cpCacheTTL, 2*cpCacheTTL)),
	}
	f.clients[cluster.ClusterID] = entry
	return entry, nil
}

func (f *LiveFactory) NodePodSource(_ context.Context, cluster akstypes.ClusterConfig) (NodePodSource, error) {
	e, err := f.entry(cluster)
	if err != nil {
		return nil, err
	}
	return &nodePodSource{c: e.kube}, nil
}

func (f *LiveFactory) MetricsSource(_ context.Context, cluster akstypes.ClusterConfig) (MetricsSource, error) {
	e, err := f.entry(cluster)
	if err != nil {
		return nil, err
	}
	return &metricsSource{c: e.kube}, nil
}

func (f *LiveFactory) EventSource(_ context.Context, cluster akstypes.ClusterConfig) (EventSource, error) {
	e, err := f.entry(cluster)
	if err != nil {
		return nil, err
	}
	return &eventSource{c: e.kube}, nil
}

func (f *LiveFactory) PolicySource(_ context.Context, cluster akstypes.ClusterConfig) (PolicySource, error) {
	e, err := f.entry(cluster)
	if err != nil {
		return nil, err
	}
	return &policySource{c: e.kube}, nil
}

func (f *LiveFactory) ControlPlaneSource(_ context.Context, cluster akstypes.ClusterConfig) (ControlPlaneSource, error) {
	e, err := f.entry(cluster)
	if err != nil {
		return nil, err
	}
	return e.cp, nil
}
