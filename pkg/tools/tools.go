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

package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/nodepoolpressure"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/pdbrisk"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/podhealth"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/upgradeduration"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/upgradeprogress"
	"github.com/contoso/aks-fleet-mcp/pkg/tools/upgradestatus"
)

type installer func(ctx context.Context, s *mcp.Server, deps *appdeps.Deps) error

// Install registers every read-only diagnostic tool against s.
func Install(ctx context.Context, s *mcp.Server, deps *appdeps.Deps) error {
	installers := []installer{
		nodepoolpressure.Install,
		podhealth.Install,
		upgradestatus.Install,
		upgradeprogress.Install,
		upgradeduration.Install,
		pdbrisk.Install,
	}

	for _, installer := range installers {
		if err := installer(ctx, s, deps); err != nil {
			return err
		}
	}

	return nil
}
