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

// Package shared holds the plumbing every tool handler repeats: resolving
// the cluster argument, timing the invocation, scrubbing and serializing
// the result, and emitting one structured log line per invocation.
package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/envelope"
	"github.com/contoso/aks-fleet-mcp/internal/fanout"
	"github.com/contoso/aks-fleet-mcp/internal/obslog"
)

// ClusterOutcome is one cluster's fragment of a fan-out, as produced by a
// tool's per-cluster fanout.Handler. Payload is nil when the cluster's
// fatal error left nothing usable; Errors carries every ToolError this
// cluster contributed, fatal or not.
type ClusterOutcome[T any] struct {
	ClusterID string
	Payload   *T
	Errors    []akstypes.ToolError
}

// ClusterPayload is one cluster's successful fragment in the merged
// envelope payload.
type ClusterPayload[T any] struct {
	ClusterID string `json:"cluster_id"`
	Data      T      `json:"data"`
}

// MergeOutcomes folds a fan-out's per-cluster outcomes into the envelope's
// Errors/PartialData fields and returns the successful fragments in
// cluster-ID order (fanout.Run already preserves input order, and
// registry.Resolve already returns clusters sorted by ID).
//
// PartialData is an envelope-level predicate: it is true exactly when at
// least one error was recorded and the merged payload still carries usable
// fragments. One cluster failing fatally while five siblings succeed is
// partial data; every cluster failing is not. Each recorded error's own
// PartialData field is lifted to match, so a core-api failure reported
// alongside surviving fragments reads partial_data=true even though the
// failing cluster itself contributed nothing.
func MergeOutcomes[T any](b *envelope.Base, results []fanout.Result[ClusterOutcome[T]]) []ClusterPayload[T] {
	var out []ClusterPayload[T]
	var errs []akstypes.ToolError
	for _, r := range results {
		oc := r.Value
		errs = append(errs, oc.Errors...)
		if oc.Payload != nil {
			out = append(out, ClusterPayload[T]{ClusterID: oc.ClusterID, Data: *oc.Payload})
		}
	}
	payloadEmpty := len(out) == 0
	for _, e := range errs {
		if !payloadEmpty {
			e.PartialData = true
		}
		b.AddError(e, payloadEmpty)
	}
	return out
}

// outcomeReporter is satisfied by every tool's result type via the
// envelope.Base it embeds.
type outcomeReporter interface {
	Outcome() (count int, first string)
}

// ValidationError builds the single-error, non-partial entry a validation
// failure reports: no client is ever invoked.
func ValidationError(field, message string) akstypes.ToolError {
	return akstypes.ToolError{
		Error:       message,
		Source:      akstypes.SourceValidation,
		PartialData: false,
	}
}

// Finish scrubs and serializes a finished tool result, logs its outcome,
// and wraps it as the mcp.CallToolResult/structured-output pair AddTool
// expects. The structured output is the scrubbed JSON, never the original
// result value: every string that leaves the process has passed through
// the scrubber, whichever channel the caller reads.
func Finish(deps *appdeps.Deps, toolName, clusterArg string, start time.Time, result outcomeReporter) (*mcp.CallToolResult, any, error) {
	scrubbed, err := envelope.Scrub(deps.Scrubber, result)
	elapsed := time.Since(start)

	count, first := result.Outcome()
	outcome := "ok"
	scrubbedMsg := ""
	if err != nil {
		outcome = "error"
		scrubbedMsg = deps.Scrubber.String(err.Error())
	} else if count > 0 {
		outcome = "error"
		scrubbedMsg = deps.Scrubber.String(first)
	}
	obslog.Emit(deps.Logger, obslog.ToolOutcome{
		Tool:        toolName,
		Cluster:     clusterArg,
		Elapsed:     elapsed,
		Outcome:     outcome,
		ScrubbedErr: scrubbedMsg,
	})

	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(scrubbed)}},
	}, json.RawMessage(scrubbed), nil
}

// ResolveClusters resolves the cluster argument and, on failure, returns
// the fatal single-error shape an unresolvable cluster ID demands:
// partial_data=false, exactly one ToolError, no payload.
func ResolveClusters(deps *appdeps.Deps, clusterArg string) ([]akstypes.ClusterConfig, *akstypes.ToolError) {
	clusters, err := deps.Registry.Resolve(clusterArg)
	if err != nil {
		return nil, &akstypes.ToolError{
			Error:       err.Error(),
			Source:      akstypes.SourceValidation,
			PartialData: false,
		}
	}
	return clusters, nil
}

// Cancelled builds the ToolError a handler reports when ctx is done:
// cancellation terminates the handler at the next boundary, it never
// surfaces as a raised error.
func Cancelled(cluster akstypes.ClusterConfig) akstypes.ToolError {
	return akstypes.ToolError{
		Error:       "invocation cancelled",
		Source:      akstypes.SourceCancelled,
		Cluster:     cluster.ClusterID,
		PartialData: true,
	}
}

// CheckCancelled returns a non-nil ToolError if ctx has already been
// cancelled, for handlers to check at each I/O boundary.
func CheckCancelled(ctx context.Context, cluster akstypes.ClusterConfig) *akstypes.ToolError {
	select {
	case <-ctx.Done():
		e := Cancelled(cluster)
		return &e
	default:
		return nil
	}
}
