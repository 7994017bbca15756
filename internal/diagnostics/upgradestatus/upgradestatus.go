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

// Package upgradestatus reports control-plane and per-pool Kubernetes
// version state, flagging end-of-support pools relative to a single clock
// read supplied by the caller.
package upgradestatus

import (
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
)

const nearingEOSWindow = 60 * 24 * time.Hour

// PoolStatus is one pool's version state.
type PoolStatus struct {
	Name           string `json:"name"`
	CurrentVersion string `json:"current_version,omitempty"`
	TargetVersion  string `json:"target_version,omitempty"`
	IsUpgrading    bool   `json:"is_upgrading"`
	Deprecated     bool   `json:"deprecated"`
	NearingEOS     bool   `json:"nearing_eos"`
}

// Result is one cluster's upgrade-status snapshot.
type Result struct {
	ControlPlaneVersion string       `json:"control_plane_version,omitempty"`
	Pools               []PoolStatus `json:"pools"`
	AvailableUpgrades   []string     `json:"available_upgrades"`
}

// Classify maps a ClusterDescription and UpgradeProfile into the reported
// status, flagging deprecated (end-of-support already passed) and
// nearing_eos (within 60 days) against now.
func Classify(desc aksclient.ClusterDescription, profile aksclient.UpgradeProfile, now time.Time) Result {
	result := Result{
		ControlPlaneVersion: desc.ControlPlaneVersion,
		AvailableUpgrades:   profile.AvailableUpgrades,
	}

	support := make(map[string]aksclient.VersionSupport, len(profile.Support))
	for _, s := range profile.Support {
		support[s.Version] = s
	}

	for _, pool := range desc.Pools {
		ps := PoolStatus{
			Name:           pool.Name,
			CurrentVersion: pool.CurrentVersion,
			TargetVersion:  pool.TargetVersion,
			IsUpgrading:    pool.IsUpgrading,
		}
		if s, ok := support[pool.CurrentVersion]; ok && s.HasEndOfSupport {
			if s.EndOfSupport.Before(now) {
				ps.Deprecated = true
			} else if s.EndOfSupport.Sub(now) <= nearingEOSWindow {
				ps.NearingEOS = true
			}
		}
		result.Pools = append(result.Pools, ps)
	}
	return result
}
