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

// Package scrub deterministically redacts sensitive values — IPv4
// addresses, subscription UUIDs, and cluster FQDNs — from any JSON-shaped
// result before it is serialized back to the MCP caller. Node names are
// never touched.
package scrub

import (
	"encoding/json"
	"regexp"
	"strings"
)

var ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)

// Scrubber holds the fleet-specific redaction targets (subscription UUIDs
// and cluster FQDNs) alongside the always-on IPv4 pattern.
type Scrubber struct {
	subscriptionIDs []string
	fqdns           []string
}

// New builds a Scrubber for the given fleet's subscription IDs and cluster
// FQDNs. Matching is case-insensitive for UUIDs and FQDNs.
func New(subscriptionIDs, fqdns []string) *Scrubber {
	s := &Scrubber{
		subscriptionIDs: make([]string, len(subscriptionIDs)),
		fqdns:           make([]string, len(fqdns)),
	}
	for i, id := range subscriptionIDs {
		s.subscriptionIDs[i] = strings.ToLower(id)
	}
	for i, f := range fqdns {
		s.fqdns[i] = strings.ToLower(f)
	}
	return s
}

// String scrubs a single string value. It is idempotent: scrubbing an
// already-scrubbed string is a no-op.
func (s *Scrubber) String(in string) string {
	out := ipv4Pattern.ReplaceAllString(in, "<redacted-ipv4>")

	lower := strings.ToLower(out)
	for _, id := range s.subscriptionIDs {
		if strings.Contains(lower, id) {
			out = replaceCaseInsensitive(out, id, "<redacted-subscription-id>")
			lower = strings.ToLower(out)
		}
	}
	for _, fqdn := range s.fqdns {
		if strings.Contains(lower, fqdn) {
			out = replaceCaseInsensitive(out, fqdn, "<redacted-fqdn>")
			lower = strings.ToLower(out)
		}
	}
	return out
}

func replaceCaseInsensitive(in, target, replacement string) string {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(target))
	return re.ReplaceAllString(in, replacement)
}

// JSON walks an arbitrary JSON-marshalable value, scrubs every string leaf,
// and returns the scrubbed value re-decoded into a generic structure
// suitable for re-marshaling. This guarantees every result structure —
// regardless of its Go type — passes through the same redaction pass
// before it is serialized to the caller.
func (s *Scrubber) JSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return s.walk(generic), nil
}

func (s *Scrubber) walk(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = s.walk(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = s.walk(val)
		}
		return out
	default:
		return v
	}
}
