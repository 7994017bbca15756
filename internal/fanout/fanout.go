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

// Package fanout runs a per-cluster handler across one or many clusters
// concurrently, bounded by the fleet size, isolating each cluster's
// failure from its siblings.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// Handler produces one cluster's fragment of a tool result, or a ToolError
// if that cluster could not be served. It must never panic; a handler that
// needs to report cancellation should check ctx.Err() and return a
// SourceCancelled ToolError.
type Handler[T any] func(ctx context.Context, cluster akstypes.ClusterConfig) (T, *akstypes.ToolError)

// Result pairs one cluster's fragment (or zero value, on error) with its
// cluster ID and optional error.
type Result[T any] struct {
	Cluster akstypes.ClusterConfig
	Value   T
	Err     *akstypes.ToolError
}

// Run dispatches h once per cluster in clusters, concurrently, bounded at
// len(clusters) in flight. No retries happen at this layer; one cluster's
// failure never prevents the others from completing. Results preserve the
// input cluster order, so merged envelopes stay sorted by cluster ID
// (registry.Resolve already returns clusters in that order for "all").
func Run[T any](ctx context.Context, clusters []akstypes.ClusterConfig, h Handler[T]) []Result[T] {
	results := make([]Result[T], len(clusters))

	// errgroup.WithContext's derived context is cancelled either when ctx
	// itself is cancelled, or when a Go func returns a non-nil error. Since
	// the handlers below never return an error, gctx only ever reflects the
	// caller's own cancellation, and one cluster's failure cannot abort its
	// siblings.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(clusters))

	for i, cluster := range clusters {
		i, cluster := i, cluster
		g.Go(func() error {
			value, toolErr := h(gctx, cluster)
			results[i] = Result[T]{Cluster: cluster, Value: value, Err: toolErr}
			// Never return a non-nil error here: a single cluster's failure
			// must not cancel gctx and abort its siblings. Failures are
			// carried in the per-result ToolError instead.
			return nil
		})
	}
	_ = g.Wait()

	return results
}
