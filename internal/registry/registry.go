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

// Package registry loads and validates the cluster map: the mapping from a
// composite cluster ID ("<environment>-<region>") to the resolved
// ClusterConfig needed to reach that cluster's control plane and
// Kubernetes API.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// Registry is an immutable, validated cluster map.
type Registry struct {
	clusters map[string]akstypes.ClusterConfig
	ids      []string // stable sort order for fan-out results
}

// Load reads and validates the cluster map YAML at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster map %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Registry, error) {
	var raw map[string]akstypes.ClusterConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cluster map: %w", err)
	}

	r := &Registry{clusters: make(map[string]akstypes.ClusterConfig, len(raw))}
	for id, cfg := range raw {
		cfg.ClusterID = id
		if err := validate(id, cfg); err != nil {
			return nil, err
		}
		r.clusters[id] = cfg
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r, nil
}

func validate(id string, cfg akstypes.ClusterConfig) error {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("cluster id %q must have the form <environment>-<region>", id)
	}
	if cfg.Environment == "" {
		return fmt.Errorf("cluster %q: environment must not be empty", id)
	}
	if cfg.Region == "" {
		return fmt.Errorf("cluster %q: region must not be empty", id)
	}
	if _, err := uuid.Parse(cfg.SubscriptionID); err != nil {
		return fmt.Errorf("cluster %q: subscription_id is not a valid UUID: %w", id, err)
	}
	if cfg.ResourceGroup == "" {
		return fmt.Errorf("cluster %q: resource_group must not be empty", id)
	}
	if cfg.ClusterName == "" {
		return fmt.Errorf("cluster %q: cluster_name must not be empty", id)
	}
	if cfg.KubeContext == "" {
		return fmt.Errorf("cluster %q: kube_context must not be empty", id)
	}
	return nil
}

// IDs returns all configured cluster IDs in stable sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Get resolves a single cluster ID.
func (r *Registry) Get(clusterID string) (akstypes.ClusterConfig, bool) {
	cfg, ok := r.clusters[clusterID]
	return cfg, ok
}

// Resolve expands a tool's "cluster" argument into the concrete list of
// ClusterConfig to fan out over. The sentinel "all" expands to every
// configured cluster, in stable sorted order. Any other value must match
// exactly one configured cluster or Resolve returns a validation error
// enumerating the valid IDs.
func (r *Registry) Resolve(clusterArg string) ([]akstypes.ClusterConfig, error) {
	if clusterArg == akstypes.AllClusters {
		out := make([]akstypes.ClusterConfig, 0, len(r.ids))
		for _, id := range r.ids {
			out = append(out, r.clusters[id])
		}
		return out, nil
	}

	cfg, ok := r.clusters[clusterArg]
	if !ok {
		return nil, fmt.Errorf("unknown cluster %q; valid cluster ids are: %s", clusterArg, strings.Join(r.IDs(), ", "))
	}
	return []akstypes.ClusterConfig{cfg}, nil
}

// SubscriptionIDs returns the distinct subscription UUIDs across the fleet,
// used by the scrubber to build its UUID-redaction pattern set.
func (r *Registry) SubscriptionIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, cfg := range r.clusters {
		if _, ok := seen[cfg.SubscriptionID]; ok {
			continue
		}
		seen[cfg.SubscriptionID] = struct{}{}
		out = append(out, cfg.SubscriptionID)
	}
	return out
}

// ClusterFQDNs returns every cluster's expected API server FQDN
// ("<cluster_name>-<first 8 chars of resource_group>.hcp.<region>.azmk8s.io"),
// used by the scrubber. AKS does not expose a single canonical FQDN format
// across private/public clusters, so this is a best-effort hostname built
// from cluster_name, resource_group and region for redaction purposes only.
func (r *Registry) ClusterFQDNs() []string {
	var out []string
	for _, cfg := range r.clusters {
		out = append(out, fmt.Sprintf("%s-%s.hcp.%s.azmk8s.io", cfg.ClusterName, shortHash(cfg.ResourceGroup), cfg.Region))
	}
	return out
}

func shortHash(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
