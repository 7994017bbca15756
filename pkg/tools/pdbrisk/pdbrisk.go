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

// Package pdbrisk registers check_pdb_upgrade_risk.
package pdbrisk

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/diagnostics/pdbrisk"
	"github.com/contoso/aks-fleet-mcp/internal/envelope"
	"github.com/contoso/aks-fleet-mcp/internal/fanout"
	"github.com/contoso/aks-fleet-mcp/internal/validate"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/shared"
)

const toolName = "check_pdb_upgrade_risk"

type args struct {
	Cluster   string `json:"cluster" jsonschema:"Composite cluster ID (<environment>-<region>) or 'all' to fan out across the whole fleet."`
	Namespace string `json:"namespace,omitempty" jsonschema:"Exact namespace to restrict the evaluation to; omit for every namespace."`
	NodePool  string `json:"node_pool,omitempty" jsonschema:"Node pool to restrict the preflight check to; omit for the whole cluster. Ignored in live mode."`
	Mode      string `json:"mode" jsonschema:"Evaluation mode: 'preflight' flags PDBs that would block any future eviction, 'live' reports PDBs blocking an eviction on an already-cordoned node right now."`
}

type payload struct {
	Mode      pdbrisk.Mode             `json:"mode"`
	Preflight *pdbrisk.PreflightResult `json:"preflight,omitempty"`
	Live      *pdbrisk.LiveResult      `json:"live,omitempty"`
}

type result struct {
	envelope.Base
	Clusters []shared.ClusterPayload[payload] `json:"clusters"`
}

func Install(_ context.Context, s *mcp.Server, deps *appdeps.Deps) error {
	mcp.AddTool(s, &mcp.Tool{
		Name:        toolName,
		Description: "Evaluate PodDisruptionBudget satisfiability for one or all AKS clusters, either as a preflight check or against nodes already cordoned for an upgrade.",
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

		if err := validate.Mode("mode", a.Mode, string(pdbrisk.ModePreflight), string(pdbrisk.ModeLive)); err != nil {
			res.AddError(shared.ValidationError("mode", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}
		if err := validate.Namespace(a.Namespace); err != nil {
			res.AddError(shared.ValidationError("namespace", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}
		if err := validate.NodePool(a.NodePool); err != nil {
			res.AddError(shared.ValidationError("node_pool", err.Error()), true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		clusters, fatal := shared.ResolveClusters(deps, a.Cluster)
		if fatal != nil {
			res.AddError(*fatal, true)
			return shared.Finish(deps, toolName, a.Cluster, start, &res)
		}

		mode := pdbrisk.Mode(a.Mode)
		outcomes := fanout.Run(ctx, clusters, func(ctx context.Context, cluster akstypes.ClusterConfig) (shared.ClusterOutcome[payload], *akstypes.ToolError) {
			return assessCluster(ctx, deps, cluster, mode, a.Namespace, a.NodePool), nil
		})

		res.Clusters = shared.MergeOutcomes(&res.Base, outcomes)
		return shared.Finish(deps, toolName, a.Cluster, start, &res)
	}
}

func assessCluster(ctx context.Context, deps *appdeps.Deps, cluster akstypes.ClusterConfig, mode pdbrisk.Mode, namespace, nodePool string) shared.ClusterOutcome[payload] {
	oc := shared.ClusterOutcome[payload]{ClusterID: cluster.ClusterID}

	if e := shared.CheckCancelled(ctx, cluster); e != nil {
		oc.Errors = append(oc.Errors, *e)
		return oc
	}

	policySource, err := deps.Factory.PolicySource(ctx, cluster)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourcePolicyAPI, err))
		return oc
	}
	pdbs, err := policySource.ListPDBs(ctx)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourcePolicyAPI, err))
		return oc
	}
	if namespace != "" {
		filtered := pdbs[:0]
		for _, pdb := range pdbs {
			if pdb.Namespace == namespace {
				filtered = append(filtered, pdb)
			}
		}
		pdbs = filtered
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
	pods, err := npSource.ListPods(ctx, namespace)
	if err != nil {
		oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceCoreAPI, err))
		return oc
	}

	p := payload{Mode: mode}
	switch mode {
	case pdbrisk.ModePreflight:
		nodePoolOfNode := make(map[string]string, len(nodes))
		for _, n := range nodes {
			nodePoolOfNode[n.Name] = n.Pool
		}
		preflight := pdbrisk.Preflight(pdbs, pods, nodePoolOfNode, nodePool)
		p.Preflight = &preflight
	case pdbrisk.ModeLive:
		eventSource, err := deps.Factory.EventSource(ctx, cluster)
		if err != nil {
			oc.Errors = append(oc.Errors, fatalError(cluster, akstypes.SourceEventsAPI, err))
			return oc
		}
		events, err := eventSource.ListNodeEvents(ctx)
		if err != nil {
			// Block duration degrades to zero rather than failing the cluster.
			oc.Errors = append(oc.Errors, degradedError(cluster, akstypes.SourceEventsAPI, err))
		}
		live := pdbrisk.Live(nodes, pods, pdbs, cordonTimes(events), time.Now())
		p.Live = &live
	}

	oc.Payload = &p
	return oc
}

// cordonTimes approximates each node's cordon time as its earliest recorded
// lifecycle event. The event taxonomy has no distinct "node cordoned" kind,
// so the first event seen for a node — NodeNotReady in the common upgrade
// sequence, or NodeUpgrade if the node went straight into the upgrade —
// stands in for the moment the node stopped accepting new pods.
func cordonTimes(events []akstypes.UpgradeEvent) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, e := range events {
		t, ok := out[e.Node]
		if !ok || e.Timestamp.Before(t) {
			out[e.Node] = e.Timestamp
		}
	}
	return out
}

func fatalError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: false}
}

func degradedError(cluster akstypes.ClusterConfig, source string, err error) akstypes.ToolError {
	return akstypes.ToolError{Error: err.Error(), Source: source, Cluster: cluster.ClusterID, PartialData: true}
}
