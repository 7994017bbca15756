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

// Package upgradestatus registers get_kubernetes_upgrade_status.
package upgradestatus

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/upgradestatus"
	"github.com/contoso/aks-fleet-mcp/internal/envelope"
	"github.com/contoso/aks-fleet-mcp/internal/fanout"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/shared"
)

const toolName = "get_kubernetes_upgrade_status"

type args struct {
	Cluster string `json:"cluster" jsonschema:"Composite cluster ID (<environment>-<region>) or 'all' to fan out across the whole fleet."`
}

type result struct {
	envelope.Base
	Clusters []shared.ClusterPayload[upgradestatus.Result] `json:"clusters"`
}

func Install(_ context.Context, s *mcp.Server, deps *appdeps.Deps) error {
	mcp.AddTool(s, &mcp.Tool{
		Name:        toolName,
		Description: "Report control-plane and per-node-pool Kubernetes version state, available upgrades, and end-of-support status for one or all AKS clusters.",
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

		clusters, fatal := shared.ResolveClusters(deps, a.Cluster)
		if fatal != nil {
			res.AddError(*fatal, true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		now := time.Now()
		outcomes := fanout.Run(ctx, clusters, func(ctx context.Context, cluster akstypes.ClusterConfig) (shared.ClusterOutcome[upgradestatus.Result], *akstypes.ToolError) {
			return assessCluster(ctx, deps, cluster, now), nil
		})

		res.Clusters = shared.MergeOutcomes(&res.Base, outcomes)
		return shared.Finish(deps, toolName, a.Cluster, start, &res)
	}
}

func assessCluster(ctx context.Context, deps *appdeps.Deps, cluster akstypes.ClusterConfig, now time.Time) shared.ClusterOutcome[upgradestatus.Result] {
	oc := shared.ClusterOutcome[upgradestatus.Result]{ClusterID: cluster.ClusterID}

	if e := shared.CheckCancelled(ctx, cluster); e != nil {
		oc.Errors = append(oc.Errors, *e)
		return oc
	}

	cp, err := deps.Factory.ControlPlaneSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, err))
		return oc
	}

	desc, err := cp.DescribeCluster(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, err))
		return oc
	}
	profile, err := cp.UpgradeProfile(ctx)
	if err != nil {
		// Version state without support data is still usable.
		oc.Errors = append(oc.Errors, degradedError(cluster, err))
	}

	classified := upgradestatus.Classify(desc, profile, now)
	oc.Payload = &classified
	return oc
}

func fatalError(cluster akstypes.ClusterConfig, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: akstypes.SourceCloudAPI, Cluster: cluster.ClusterID, PartialData: false}
}

func degradedError(cluster akstypes.ClusterConfig, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: akstypes.SourceCloudAPI, Cluster: cluster.ClusterID, PartialData: true}
}
