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

// Package podhealth registers get_pod_health.
package podhealth

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/podhealth"
	"github.com/contoso/aks-fleet-mcp/internal/envelope"
	"github.com/contoso/aks-fleet-mcp/internal/fanout"
	"github.com/contoso/aks-fleet-mcp/internal/validate"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/shared"
)

const toolName = "get_pod_health"

type args struct {
	Cluster      string `json:"cluster" jsonschema:"Composite cluster ID (<environment>-<region>) or 'all' to fan out across the whole fleet."`
	Namespace    string `json:"namespace,omitempty" jsonschema:"Exact namespace to filter to; omit for every namespace."`
	StatusFilter string `json:"status_filter,omitempty" jsonschema:"Pod status to filter to: one of 'pending', 'failed', or 'all'. Defaults to all."`
}

type result struct {
	envelope.Base
	Clusters []shared.ClusterPayload[podhealth.Result] `json:"clusters"`
}

func Install(_ context.Context, s *mcp.Server, deps *appdeps.Deps) error {
	mcp.AddTool(s, &mcp.Tool{
		Name:        toolName,
		Description: "Report currently-unhealthy pods, categorized by failure reason, for one or all AKS clusters.",
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

		statusFilter := podhealth.StatusFilter(a.StatusFilter)
		if statusFilter == "" {
			statusFilter = podhealth.StatusAll
		}
		if err := validate.Namespace(a.Namespace); err != nil {
			res.AddError(shared.ValidationError("namespace", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}
		if err := validate.Mode("status_filter", string(statusFilter), string(podhealth.StatusPending), string(podhealth.StatusFailed), string(podhealth.StatusAll)); err != nil {
			res.AddError(shared.ValidationError("status_filter", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		clusters, fatal := shared.ResolveClusters(deps, a.Cluster)
		if fatal != nil {
			res.AddError(*fatal, true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		outcomes := fanout.Run(ctx, clusters, func(ctx context.Context, cluster akstypes.ClusterConfig) (shared.ClusterOutcome[podhealth.Result], *akstypes.ToolError) {
			return assessCluster(ctx, deps, cluster, a.Namespace, statusFilter), nil
		})

		res.Clusters = shared.MergeOutcomes(&res.Base, outcomes)
		return shared.Finish(deps, toolName, a.Cluster, start, &res)
	}
}

func assessCluster(ctx context.Context, deps *appdeps.Deps, cluster akstypes.ClusterConfig, namespace string, statusFilter podhealth.StatusFilter) shared.ClusterOutcome[podhealth.Result] {
	oc := shared.ClusterOutcome[podhealth.Result]{ClusterID: cluster.ClusterID}

	if e := shared.CheckCancelled(ctx, cluster); e != nil {
		oc.Errors = append(oc.Errors, *e)
		return oc
	}

	npSource, err := deps.Factory.NodePodSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}
	pods, err := npSource.ListPods(ctx, namespace)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}

	eventSource, err := deps.Factory.EventSource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceEventsAPI, err))
		return oc
	}
	podEvents, err := eventSource.ListPodEvents(ctx, namespace)
	if err != nil {
		oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourceEventsAPI, err))
	}

	classified := podhealth.Classify(pods, podEvents, namespace, statusFilter)
	oc.Payload = &classified
	return oc
}

func fatalError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: false}
}

func degradedError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: true}
}
