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

// Package upgradeprogress registers get_upgrade_progress.
package upgradeprogress

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/upgradeprogress"
	"github.com/contoso/aks-fleet-mcp/internal/envelope"
	"github.com/contoso/aks-fleet-mcp/internal/fanout"
	"github.com/contoso/aks-fleet-mcp/internal/validate"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/shared"
)

const toolName = "get_upgrade_progress"

type args struct {
	Cluster  string `json:"cluster" jsonschema:"Composite cluster ID (<environment>-<region>) or 'all' to fan out across the whole fleet."`
	NodePool string `json:"node_pool,omitempty" jsonschema:"Node pool to report progress for; omit to report the pool AKS currently reports as upgrading."`
}

type result struct {
	envelope.Base
	Clusters []shared.ClusterPayload[upgradeprogress.Result] `json:"clusters"`
}

func Install(_ context.Context, s *mcp.Server, deps *appdeps.Deps) error {
	mcp.AddTool(s, &mcp.Tool{
		Name:        toolName,
		Description: "Report per-node upgrade progress, pool rollup counters, and affected-pod transitions for an actively upgrading node pool, for one or all AKS clusters.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:   true,
			IdempotentHint: true,
		},
	}, handler(deps))
	return nil
}

func handler(deps *appdeps.Deps) func(context.Context, *mcp.CallToolRequest, *args) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, a *args) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		res := result{}

		if err := validate.NodePool(a.NodePool); err != nil {
			res.AddError(shared.ValidationError("node_pool", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		clusters, fatal := shared.ResolveClusters(deps, a.Cluster)
		if fatal != nil {
			res.AddError(*fatal, true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		outcomes := fanout.Run(ctx, clusters, func(ctx context.Context, cluster akstypes.ClusterConfig) (shared.ClusterOutcome[upgradeprogress.Result], *akstypes.ToolError) {
			return assessCluster(ctx, deps, cluster, a.NodePool), nil
		})

		res.Clusters = shared.MergeOutcomes(&res.Base, outcomes)
		return shared.Finish(deps, toolName, a.Cluster, start, &res)
	}
}

func assessCluster(ctx context.Context, deps *appdeps.Deps, cluster akstypes.ClusterConfig, nodePool string) shared.ClusterOutcome[upgradeprogress.Result] {
	oc := shared.ClusterOutcome[upgradeprogress.Result]{ClusterID: cluster.ClusterID}

	if e := shared.CheckCancelled(ctx, cluster); e != nil {
		oc.Errors = append(oc.Errors, *e)
		return oc
	}

	cp, err := deps.Factory.ControlPlaneSource(ctx, cluster)
	if err != nil {
		// A control-plane failure reports "no active upgrade" with the error
		// attached rather than aborting the cluster outright.
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourceCloudAPI, err))
		notInProgress := upgradeprogress.NotInProgress()
		oc.Payload = &notInProgress
		return oc
	}
	desc, err := cp.DescribeCluster(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourceCloudAPI, err))
		notInProgress := upgradeprogress.NotInProgress()
		oc.Payload = &notInProgress
		return oc
	}

	pool, found := selectPool(desc.Pools, nodePool)
	if !found || !pool.IsUpgrading {
		notInProgress := upgradeprogress.NotInProgress()
		oc.Payload = &notInProgress
		return oc
	}

	npSource, err := deps.Factory.NodePodSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}
	allNodes, err := npSource.ListNodes(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}
	pods, err := npSource.ListPods(ctx, "")
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}

	var poolNodes []akstypes.NodeRecord
	for _, n := range allNodes {
		if n.Pool == pool.Name {
			poolNodes = append(poolNodes, n)
		}
	}

	eventSource, err := deps.Factory.EventSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceEventsAPI, err))
		return oc
	}
	events, err := eventSource.ListNodeEvents(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourceEventsAPI, err))
	}

	policySource, err := deps.Factory.PolicySource(ctx, cluster)
	var pdbs []akstypes.PdbRecord
	if err != nil {
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourcePolicyAPI, err))
	} else if p, err := policySource.ListPDBs(ctx); err != nil {
		// PDB attribution degrades to "cordoned, unattributed" without failing
		// the whole report.
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourcePolicyAPI, err))
	} else {
		pdbs = p
	}

	classified := upgradeprogress.Classify(pool.Name, pool.TargetVersion, poolNodes, pods, events, pdbs, deps.Thresholds.UpgradeAnomaly, time.Now())
	oc.Payload = &classified
	return oc
}

// selectPool returns the pool named nodePool, or — if nodePool is empty —
// the first pool AKS currently reports as upgrading.
func selectPool(pools []aksclient.PoolVersion, nodePool string) (aksclient.PoolVersion, bool) {
	if nodePool != "" {
		for _, p := range pools {
			if p.Name == nodePool {
				return p, true
			}
		}
		return aksclient.PoolVersion{}, false
	}
	for _, p := range pools {
		if p.IsUpgrading {
			return p, true
		}
	}
	return aksclient.PoolVersion{}, false
}

func fatalError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: false}
}

func degradedError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: true}
}
