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

// Package validate holds the tool-argument validators shared across
// handlers: namespace, node-pool name, and the small numeric ranges the
// spec bounds. Every validator runs before any downstream client call.
package validate

import (
	"fmt"
	"regexp"

	"k8s.io/apimachinery/pkg/util/validation"
)

var poolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9]{0,11}$`)

// Namespace validates an optional namespace argument against RFC-1123 DNS
// label rules. An empty string is valid and means "no namespace filter."
func Namespace(ns string) error {
	if ns == "" {
		return nil
	}
	if errs := validation.IsDNS1123Label(ns); len(errs) > 0 {
		return fmt.Errorf("namespace %q is not a valid RFC-1123 label: %s", ns, errs[0])
	}
	return nil
}

// NodePool validates an optional node-pool argument against AKS's pool
// naming rule: lowercase letters and digits, starting with a letter, at
// most 12 characters. An empty string is valid and means "no pool filter."
func NodePool(pool string) error {
	if pool == "" {
		return nil
	}
	if !poolNamePattern.MatchString(pool) {
		return fmt.Errorf("node pool %q does not match the required pattern %s", pool, poolNamePattern.String())
	}
	return nil
}

// IntRange validates that v lies within [min, max] inclusive.
func IntRange(name string, v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%s=%d must be in the range [%d, %d]", name, v, min, max)
	}
	return nil
}

// Mode validates v is one of the allowed enum values, case-sensitive.
func Mode(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s=%q is not one of %v", name, v, allowed)
}
