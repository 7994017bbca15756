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

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

// Config is process-wide, immutable configuration: the server identity and
// the threshold bundle. It carries no cluster registry state — that lives
// in internal/registry, loaded separately from the YAML cluster map.
type Config struct {
	userAgent  string
	Thresholds akstypes.ThresholdBundle
}

func (c *Config) UserAgent() string {
	return c.userAgent
}

// New builds the process configuration, applying environment-variable
// overrides to the default threshold bundle.
func New(version string) *Config {
	return &Config{
		userAgent:  "aks-fleet-mcp/" + version,
		Thresholds: loadThresholds(),
	}
}

const (
	envCPUWarning      = "AKS_FLEET_CPU_WARNING_PERCENT"
	envCPUCritical     = "AKS_FLEET_CPU_CRITICAL_PERCENT"
	envMemWarning      = "AKS_FLEET_MEMORY_WARNING_PERCENT"
	envMemCritical     = "AKS_FLEET_MEMORY_CRITICAL_PERCENT"
	envPendingWarning  = "AKS_FLEET_PENDING_PODS_WARNING"
	envPendingCritical = "AKS_FLEET_PENDING_PODS_CRITICAL"
	envUpgradeAnomaly  = "AKS_FLEET_UPGRADE_ANOMALY_MINUTES"
)

func loadThresholds() akstypes.ThresholdBundle {
	b := akstypes.ThresholdBundle{
		CPUWarningPercent:     75,
		CPUCriticalPercent:    90,
		MemoryWarningPercent:  80,
		MemoryCriticalPercent: 95,
		PendingPodsWarning:    1,
		PendingPodsCritical:   10,
		UpgradeAnomaly:        60 * time.Minute,
	}

	overrideFloat(envCPUWarning, &b.CPUWarningPercent)
	overrideFloat(envCPUCritical, &b.CPUCriticalPercent)
	overrideFloat(envMemWarning, &b.MemoryWarningPercent)
	overrideFloat(envMemCritical, &b.MemoryCriticalPercent)
	overrideInt(envPendingWarning, &b.PendingPodsWarning)
	overrideInt(envPendingCritical, &b.PendingPodsCritical)

	if raw, ok := os.LookupEnv(envUpgradeAnomaly); ok {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			b.UpgradeAnomaly = time.Duration(minutes) * time.Minute
		}
	}

	return b
}

func overrideFloat(envVar string, dst *float64) {
	raw, ok := os.LookupEnv(envVar)
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	*dst = v
}

func overrideInt(envVar string, dst *int) {
	raw, ok := os.LookupEnv(envVar)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	*dst = v
}
