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
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/monitor/query/azlogs"
	armcontainerservice "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice/v4"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// endOfSupport is a static lookup of AKS Kubernetes-minor-version end-of-support
// dates. armcontainerservice's GetUpgradeProfile response carries an
// IsPreview flag but no support-window date, so the profile's support
// status is computed against this table rather than an API field.
var endOfSupport = map[string]time.Time{
	"1.27": time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC),
	"1.28": time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	"1.29": time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
	"1.30": time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
	"1.31": time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	"1.32": time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
}

// azureControlPlane is the ControlPlaneSource implementation backed by
// armcontainerservice's ManagedClustersClient and an azlogs workspace query
// for historical upgrade records.
type azureControlPlane struct {
	cluster     akstypes.ClusterConfig
	clustersAPI *armcontainerservice.ManagedClustersClient
	logsAPI     *azlogs.Client
	workspaceID string
}

func newAzureControlPlane(cred *azidentity.DefaultAzureCredential, cluster akstypes.ClusterConfig, workspaceID string) (*azureControlPlane, error) {
	clustersAPI, err := armcontainerservice.NewManagedClustersClient(cluster.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build managed clusters client: %w", err)
	}
	logsAPI, err := azlogs.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build monitor logs client: %w", err)
	}
	return &azureControlPlane{
		cluster:     cluster,
		clustersAPI: clustersAPI,
		logsAPI:     logsAPI,
		workspaceID: workspaceID,
	}, nil
}

func (c *azureControlPlane) DescribeCluster(ctx context.Context) (ClusterDescription, error) {
	resp, err := offload(ctx, func() (armcontainerservice.ManagedClustersClientGetResponse, error) {
		return c.clustersAPI.Get(ctx, c.cluster.ResourceGroup, c.cluster.ClusterName, nil)
	})
	if err != nil {
		return ClusterDescription{}, fmt.Errorf("%s: %w", akstypes.SourceCloudAPI, err)
	}

	desc := ClusterDescription{}
	if resp.Properties != nil && resp.Properties.CurrentKubernetesVersion != nil {
		desc.ControlPlaneVersion = *resp.Properties.CurrentKubernetesVersion
	}
	// A null current_orchestrator_version mid-upgrade is itself evidence an
	// upgrade is in flight; never inferred from comparing to a target here.

	if resp.Properties == nil {
		return desc, nil
	}
	for _, pool := range resp.Properties.AgentPoolProfiles {
		pv := PoolVersion{}
		if pool.Name != nil {
			pv.Name = *pool.Name
		}
		if pool.CurrentOrchestratorVersion != nil {
			pv.CurrentVersion = *pool.CurrentOrchestratorVersion
			if pool.OrchestratorVersion != nil && pv.CurrentVersion != *pool.OrchestratorVersion {
				pv.IsUpgrading = true
				pv.TargetVersion = *pool.OrchestratorVersion
			}
		} else {
			pv.IsUpgrading = true
			if pool.OrchestratorVersion != nil {
				pv.TargetVersion = *pool.OrchestratorVersion
			}
		}
		desc.Pools = append(desc.Pools, pv)
	}
	return desc, nil
}

func (c *azureControlPlane) UpgradeProfile(ctx context.Context) (UpgradeProfile, error) {
	resp, err := offload(ctx, func() (armcontainerservice.ManagedClustersClientGetUpgradeProfileResponse, error) {
		return c.clustersAPI.GetUpgradeProfile(ctx, c.cluster.ResourceGroup, c.cluster.ClusterName, nil)
	})
	if err != nil {
		return UpgradeProfile{}, fmt.Errorf("%s: %w", akstypes.SourceCloudAPI, err)
	}

	profile := UpgradeProfile{}
	seen := make(map[string]struct{})
	if resp.Properties != nil && resp.Properties.ControlPlaneProfile != nil {
		for _, u := range resp.Properties.ControlPlaneProfile.Upgrades {
			if u.KubernetesVersion == nil {
				continue
			}
			v := *u.KubernetesVersion
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			profile.AvailableUpgrades = append(profile.AvailableUpgrades, v)
			profile.Support = append(profile.Support, versionSupport(v))
		}
	}
	sort.Strings(profile.AvailableUpgrades)
	return profile, nil
}

func versionSupport(version string) VersionSupport {
	minor := minorVersion(version)
	eos, ok := endOfSupport[minor]
	return VersionSupport{Version: version, EndOfSupport: eos, HasEndOfSupport: ok}
}

func minorVersion(version string) string {
	major, minor := 0, 0
	patch := 0
	n, _ := fmt.Sscanf(version, "%d.%d.%d", &major, &minor, &patch)
	if n < 2 {
		return version
	}
	return fmt.Sprintf("%d.%d", major, minor)
}

// historicalUpgradeQuery is a KQL query over the cluster's diagnostic-setting
// workspace, reconstructing completed node-image-upgrade runs from the
// AzureDiagnostics/KubeEvents table by pairing each run's first NodeUpgrade
// event with its last NodeReady event.
const historicalUpgradeQuery = `
KubeEvents
| where Reason in ("NodeUpgrade", "NodeReady")
| where ClusterName_s == "%s"
| summarize Start=min(TimeGenerated), End=max(TimeGenerated), NodeCount=dcount(Computer) by SourceVersion=tostring(ObjectRef_s), TargetVersion=tostring(Message)
| order by Start desc
| take %d
`

func (c *azureControlPlane) HistoricalUpgrades(ctx context.Context, limit int) ([]akstypes.HistoricalUpgrade, error) {
	query := fmt.Sprintf(historicalUpgradeQuery, c.cluster.ClusterName, limit)
	resp, err := offload(ctx, func() (azlogs.QueryWorkspaceResponse, error) {
		return c.logsAPI.QueryWorkspace(ctx, c.workspaceID, azlogs.QueryBody{
			Query:    to.Ptr(query),
			Timespan: to.Ptr(azlogs.NewTimeInterval(time.Now().Add(-90*24*time.Hour), time.Now())),
		}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", akstypes.SourceCloudAuditLog, err)
	}

	var out []akstypes.HistoricalUpgrade
	if len(resp.Tables) == 0 {
		return out, nil
	}
	table := resp.Tables[0]
	colIndex := make(map[string]int, len(table.Columns))
	for i, col := range table.Columns {
		if col.Name != nil {
			colIndex[*col.Name] = i
		}
	}
	for _, row := range table.Rows {
		rec := akstypes.HistoricalUpgrade{}
		if i, ok := colIndex["Start"]; ok && i < len(row) {
			rec.Start = parseRowTime(row[i])
		}
		if i, ok := colIndex["End"]; ok && i < len(row) {
			rec.End = parseRowTime(row[i])
		}
		if i, ok := colIndex["SourceVersion"]; ok && i < len(row) {
			if s, ok := row[i].(string); ok {
				rec.SourceVersion = s
			}
		}
		if i, ok := colIndex["TargetVersion"]; ok && i < len(row) {
			if s, ok := row[i].(string); ok {
				rec.TargetVersion = s
			}
		}
		if i, ok := colIndex["NodeCount"]; ok && i < len(row) {
			if f, ok := row[i].(float64); ok {
				rec.NodeCount = int(f)
			}
		}
		rec.AggregateDuration = rec.End.Sub(rec.Start)
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func parseRowTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
