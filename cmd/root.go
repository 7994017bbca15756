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

// Package cmd wires the cobra root command: it loads the cluster registry
// and process configuration, builds the dependency bundle, and runs the
// MCP server over stdio. There is no listening socket and no subcommand
// surface beyond the server itself — the fleet fan-out engine is a child
// process, not a service.
package cmd

import (
	"context"
	"errors"
	"os"
	"runtime/debug"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/appdeps"
	"github.com/contoso/aks-fleet-mcp/internal/config"
	"github.com/contoso/aks-fleet-mcp/internal/obslog"
	"github.com/contoso/aks-fleet-mcp/internal/registry"
	"github.com/contoso/aks-fleet-mcp/internal/scrub"
	"github.com/contoso/aks-fleet-mcp/pkg/tools"
)

var (
	version = "(unknown)"

	clusterMapPath string
	workspaceID    string

	rootCmd = &cobra.Command{
		Use:   "aks-fleet-mcp",
		Short: "A read-only MCP server for a fleet of AKS clusters",
		Run:   runRootCmd,
	}
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		version = bi.Main.Version
	}

	rootCmd.Flags().StringVar(&clusterMapPath, "cluster-map", envOrDefault("AKS_FLEET_CLUSTER_MAP", "clusters.yaml"),
		"path to the YAML cluster map (env AKS_FLEET_CLUSTER_MAP)")
	rootCmd.Flags().StringVar(&workspaceID, "log-analytics-workspace-id", os.Getenv("AKS_FLEET_WORKSPACE_ID"),
		"Azure Monitor Log Analytics workspace GUID used for historical-upgrade audit log queries (env AKS_FLEET_WORKSPACE_ID)")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runRootCmd(cmd *cobra.Command, _ []string) {
	startMCPServer(cmd.Context())
}

// startMCPServer loads the cluster registry and process configuration,
// builds the dependency bundle, registers the six diagnostic tools, and
// runs the server over stdio. Every fatal error is scrubbed before it is
// logged and the process exits non-zero: before the registry loads, only
// the always-on IPv4 pattern applies (there are no subscription IDs or
// FQDNs to redact yet); afterwards the registry-derived scrubber covers
// all three pattern sets.
func startMCPServer(ctx context.Context) {
	logger, err := obslog.New()
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer logger.Sync() //nolint:errcheck

	reg, err := registry.Load(clusterMapPath)
	if err != nil {
		bootScrubber := scrub.New(nil, nil)
		logger.Error("failed to load cluster map",
			zap.String("path", clusterMapPath),
			zap.String("error", bootScrubber.String(err.Error())))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}

	cfg := config.New(version)
	factory := aksclient.NewLiveFactory(workspaceID)
	deps := appdeps.New(cfg, reg, factory, logger)

	s := mcp.NewServer(
		&mcp.Implementation{
			Name:    "AKS Fleet Operations MCP Server",
			Version: version,
		},
		&mcp.ServerOptions{
			HasTools: true,
		},
	)

	if err := tools.Install(ctx, s, deps); err != nil {
		logger.Error("failed to install tools", zap.String("error", deps.Scrubber.String(err.Error())))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}

	logger.Sugar().Infow("starting aks-fleet-mcp server", "version", version, "clusters", len(reg.IDs()))

	// Standard output carries only the MCP JSON-RPC stream; no wrapping
	// logging transport is used here, since that would interleave non-JSON
	// debug framing with the JSON-per-line contract on standard error.
	// Per-tool structured logging goes through obslog instead.
	if err := s.Run(ctx, &mcp.StdioTransport{}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("server shutting down")
			return
		}
		logger.Error("server error", zap.String("error", deps.Scrubber.String(err.Error())))
		os.Exit(1)
	}
}
