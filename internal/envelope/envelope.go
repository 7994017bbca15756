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

// Package envelope defines the common result-envelope fields every tool
// response carries, plus the scrubbing pass every envelope goes through
// before serialization.
package envelope

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
	"github.com/contoso/aks-fleet-mcp/internal/scrub"
)

// Base is embedded by every tool's result type. It is never constructed
// with PartialData=true unless Errors is non-empty and the payload still
// carries usable data.
type Base struct {
	Errors      []akstypes.ToolError `json:"errors"`
	PartialData bool                 `json:"partial_data"`
}

// AddError appends an error and, unless payloadEmpty is true, marks the
// envelope as carrying partial data.
func (b *Base) AddError(err akstypes.ToolError, payloadEmpty bool) {
	b.Errors = append(b.Errors, err)
	if !payloadEmpty {
		b.PartialData = true
	}
	sortErrors(b.Errors)
}

// Outcome reports the error count and, if any, the first error's message,
// for the single structured log line a tool invocation emits on exit.
func (b Base) Outcome() (count int, first string) {
	if len(b.Errors) == 0 {
		return 0, ""
	}
	return len(b.Errors), b.Errors[0].Error
}

func sortErrors(errs []akstypes.ToolError) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Cluster != errs[j].Cluster {
			return errs[i].Cluster < errs[j].Cluster
		}
		return errs[i].Source < errs[j].Source
	})
}

// Scrub runs the result through the scrubber and re-marshals it as
// canonical (sorted-key) JSON, the final step before a tool handler hands
// its response back to the MCP transport.
func Scrub(s *scrub.Scrubber, v any) (json.RawMessage, error) {
	scrubbed, err := s.JSON(v)
	if err != nil {
		return nil, err
	}
	// encoding/json sorts map keys on marshal, which combined with scrub.JSON's
	// decode into map[string]any gives deterministic, byte-identical output
	// for identical upstream data.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(scrubbed); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
