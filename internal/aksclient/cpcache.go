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
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

const cpCacheTTL = 30 * time.Second

// cachedControlPlane wraps a ControlPlaneSource with a short time-keyed
// cache, keyed per (cluster_id, method), to absorb a burst of fan-out calls
// hitting the same cluster's control plane within the same tool invocation.
// The cache is safe for concurrent use; go-cache guards its own map.
type cachedControlPlane struct {
	inner     ControlPlaneSource
	clusterID string
	cache     *gocache.Cache
}

func newCachedControlPlane(inner ControlPlaneSource, clusterID string, cache *gocache.Cache) *cachedControlPlane {
	return &cachedControlPlane{inner: inner, clusterID: clusterID, cache: cache}
}

func (c *cachedControlPlane) DescribeCluster(ctx context.Context) (ClusterDescription, error) {
	key := fmt.Sprintf("%s/describe", c.clusterID)
	if v, ok := c.cache.Get(key); ok {
		return v.(ClusterDescription), nil
	}
	desc, err := c.inner.DescribeCluster(ctx)
	if err != nil {
		return desc, err
	}
	c.cache.Set(key, desc, cpCacheTTL)
	return desc, nil
}

func (c *cachedControlPlane) UpgradeProfile(ctx context.Context) (UpgradeProfile, error) {
	key := fmt.Sprintf("%s/upgrade-profile", c.clusterID)
	if v, ok := c.cache.Get(key); ok {
		return v.(UpgradeProfile), nil
	}
	profile, err := c.inner.UpgradeProfile(ctx)
	if err != nil {
		return profile, err
	}
	c.cache.Set(key, profile, cpCacheTTL)
	return profile, nil
}

func (c *cachedControlPlane) HistoricalUpgrades(ctx context.Context, limit int) ([]akstypes.HistoricalUpgrade, error) {
	// Not cached: callers request varying limits, and historical records
	// change at most once per completed upgrade run, far slower than the
	// cache TTL would ever help with.
	return c.inner.HistoricalUpgrades(ctx, limit)
}
