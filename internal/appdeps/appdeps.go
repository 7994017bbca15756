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

// Package appdeps bundles the process-wide collaborators every tool
// registration needs: the validated cluster registry, the lazy
// per-cluster client factory, the scrubber built from that registry's
// sensitive values, the threshold bundle, and the structured logger.
package appdeps

import (
	"go.uber.org/zap"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/config"
	"github.com/contoso/aks-fleet-mcp/internal/registry"
	"github.com/contoso/aks-fleet-mcp/internal/scrub"
)

// Deps is passed to every tool Install function in place of a
// bare config object, since tool handlers need far more than the server's
// identity string.
type Deps struct {
	Config     *config.Config
	Registry   *registry.Registry
	Factory    aksclient.Factory
	Scrubber   *scrub.Scrubber
	Thresholds akstypes.ThresholdBundle
	Logger     *zap.Logger
}

// New builds the process-wide dependency bundle from a loaded registry.
func New(cfg *config.Config, reg *registry.Registry, factory aksclient.Factory, logger *zap.Logger) *Deps {
	return &Deps{
		Config:     cfg,
		Registry:   reg,
		Factory:    factory,
		Scrubber:   scrub.New(reg.SubscriptionIDs(), reg.ClusterFQDNs()),
		Thresholds: cfg.Thresholds,
		Logger:     logger,
	}
}
