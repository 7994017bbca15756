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

// Package upgradeduration registers get_upgrade_duration_metrics.
package upgradeduration

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/upgradeduration"
	"github.com/contoso/aks-fleet-mcp/internal/envelope"
	"github.com/contoso/aks-fleet-mcp/internal/fanout"
	"github.com/contoso/aks-fleet-mcp/internal/validate"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/shared"
)

const (
	toolName            = "get_upgrade_duration_metrics"
	defaultHistoryCount = 10
)

type args struct {
	Cluster      string `json:"cluster" jsonschema:"Composite cluster ID (<environment>-<region>) or 'all' to fan out across the whole fleet."`
	NodePool     string `json:"node_pool" jsonschema:"Node pool name to report duration metrics for."`
	HistoryCount *int   `json:"history_count,omitempty" jsonschema:"Number of historical upgrade runs to summarize, 1-50. Defaults to 10 if omitted; 0 is a validation error, not a request for the default."`
}

type result struct {
	envelope.Base
	Clusters []shared.ClusterPayload[upgradeduration.Result] `json:"clusters"`
}

func Install(_ context.Context, s *mcp.Server, deps *appdeps.Deps) error {
	mcp.AddTool(s, &mcp.Tool{
		Name:        toolName,
		Description: "Report a node pool's current-upgrade-run timing alongside historical upgrade duration statistics, for one or all AKS clusters.",
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

		if a.NodePool == "" {
			res.AddError(shared.ValidationError("node_pool", "node_pool is required"), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}
		if err := validate.NodePool(a.NodePool); err != nil {
			res.AddError(shared.ValidationError("node_pool", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		// history_count is validated against the caller's actual value before
		// any default is applied: an omitted field defaults to 10, but an
		// explicit 0 (or anything outside [1,50]) is a validation error per
		// spec, not a request for the default.
		historyCount := defaultHistoryCount
		if a.HistoryCount != nil {
			historyCount = *a.HistoryCount
			if err := validate.IntRange("history_count", historyCount, 1, 50); err != nil {
				res.AddError(shared.ValidationError("history_count", err.Error()), true)
				return shared.Finish(deps, toolName, a.Cluster, start, &res)
			}
		}

		clusters, fatal := shared.ResolveClusters(deps, a.Cluster)
		if fatal != nil {
			res.AddError(*fatal, true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		outcomes := fanout.Run(ctx, clusters, func(ctx context.Context, cluster akstypes.ClusterConfig) (shared.ClusterOutcome[upgradeduration.Result], *akstypes.ToolError) {
			return assessCluster(ctx, deps, cluster, a.NodePool, historyCount), nil
		})

		res.Clusters = shared.MergeOutcomes(&res.Base, outcomes)
		return shared.Finish(deps, toolName, a.Cluster, start, &res)
	}
}

func assessCluster(ctx context.Context, deps *appdeps.Deps, cluster akstypes.ClusterConfig, nodePool string, historyCount int) shared.ClusterOutcome[upgradeduration.Result] {
	oc := shared.ClusterOutcome[upgradeduration.Result]{ClusterID: cluster.ClusterID}

	if e := shared.CheckCancelled(ctx, cluster); e != nil {
		oc.Errors = append(oc.Errors, *e)
		return oc
	}

	npSource, err := deps.Factory.NodePodSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}
	nodes, err := npSource.ListNodes(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}
	poolNodes := make(map[string]bool)
	for _, n := range nodes {
		if n.Pool == nodePool {
			poolNodes[n.Name] = true
		}
	}

	eventSource, err := deps.Factory.EventSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceEventsAPI, err))
		return oc
	}
	allEvents, err := eventSource.ListNodeEvents(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceEventsAPI, err))
		return oc
	}
	var poolEvents []akstypes.UpgradeEvent
	for _, e := range allEvents {
		if poolNodes[e.Node] {
			poolEvents = append(poolEvents, e)
		}
	}

	cp, err := deps.Factory.ControlPlaneSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCloudAPI, err))
		return oc
	}
	historical, err := cp.HistoricalUpgrades(ctx, historyCount)
	if err != nil {
		// The current run's live timing is still reportable without history.
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourceCloudAuditLog, err))
	}

	classified := upgradeduration.Classify(poolEvents, historical, historyCount, deps.Thresholds.UpgradeAnomaly, time.Now())
	oc.Payload = &classified
	return oc
}

func fatalError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: false}
}

func degradedError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: true}
}
