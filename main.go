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

// Command aks-fleet-mcp is a child-process MCP server answering read-only
// diagnostic questions about a fleet of AKS clusters over stdio.
package main

import "github.com/contoso/aks-fleet-mcp/cmd"

func main() {
	cmd.Execute()
}
