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

package podhealth

import (
	"testing"
	"time"

	"github.com/contoso/aks-fleet-mcp/internal/aksclient"
	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

func TestClassifyCategorizesWaitingReasons(t *testing.T) {
	testCases := []struct {
		name         string
		pod          akstypes.PodRecord
		wantCategory akstypes.FailureCategory
	}{
		{
			name: "crash loop backoff is runtime",
			pod: akstypes.PodRecord{
				Name: "p1", Phase: "Running",
				Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: false, WaitingReason: "CrashLoopBackOff"}},
			},
			wantCategory: akstypes.FailureRuntime,
		},
		{
			name: "image pull backoff is registry",
			pod: akstypes.PodRecord{
				Name: "p2", Phase: "Running",
				Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: false, WaitingReason: "ImagePullBackOff"}},
			},
			wantCategory: akstypes.FailureRegistry,
		},
		{
			name: "err image pull is registry",
			pod: akstypes.PodRecord{
				Name: "p3", Phase: "Running",
				Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: false, WaitingReason: "ErrImagePull"}},
			},
			wantCategory: akstypes.FailureRegistry,
		},
		{
			name: "create container config error is config",
			pod: akstypes.PodRecord{
				Name: "p4", Phase: "Running",
				Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: false, WaitingReason: "CreateContainerConfigError"}},
			},
			wantCategory: akstypes.FailureConfig,
		},
		{
			name: "oom killed is runtime via terminated reason, not waiting",
			pod: akstypes.PodRecord{
				Name: "p5", Phase: "Running",
				Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: false, LastTerminatedReason: "OOMKilled", MemoryLimit: 512}},
			},
			wantCategory: akstypes.FailureRuntime,
		},
		{
			name: "oom killed counts even after the container restarted ready",
			pod: akstypes.PodRecord{
				Name: "p7", Phase: "Running",
				Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: true, RestartCount: 1, LastTerminatedReason: "OOMKilled", MemoryLimit: 512}},
			},
			wantCategory: akstypes.FailureRuntime,
		},
		{
			name:         "pending pod with no unhealthy container is scheduling",
			pod:          akstypes.PodRecord{Name: "p6", Phase: "Pending"},
			wantCategory: akstypes.FailureScheduling,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Classify([]akstypes.PodRecord{tc.pod}, nil, "", StatusAll)
			if result.TotalMatched != 1 {
				t.Fatalf("TotalMatched = %d, want 1", result.TotalMatched)
			}
			if result.Pods[0].Category != tc.wantCategory {
				t.Errorf("Category = %v, want %v", result.Pods[0].Category, tc.wantCategory)
			}
		})
	}
}

func TestClassifyIgnoresHealthyRunningPods(t *testing.T) {
	pods := []akstypes.PodRecord{
		{Name: "healthy", Phase: "Running", Containers: []akstypes.ContainerStatus{{Name: "c1", Ready: true}}},
	}
	result := Classify(pods, nil, "", StatusAll)
	if result.TotalMatched != 0 {
		t.Errorf("TotalMatched = %d, want 0 for a healthy running pod", result.TotalMatched)
	}
}

func TestClassifyNamespaceFilter(t *testing.T) {
	pods := []akstypes.PodRecord{
		{Name: "a", Namespace: "ns1", Phase: "Failed"},
		{Name: "b", Namespace: "ns2", Phase: "Failed"},
	}
	result := Classify(pods, nil, "ns1", StatusAll)
	if result.TotalMatched != 1 || result.Pods[0].Name != "a" {
		t.Errorf("Classify() with namespace filter matched %+v, want only pod a", result.Pods)
	}
}

func TestClassifyStatusFilter(t *testing.T) {
	pods := []akstypes.PodRecord{
		{Name: "pending-pod", Phase: "Pending"},
		{Name: "failed-pod", Phase: "Failed"},
	}

	t.Run("pending filter", func(t *testing.T) {
		result := Classify(pods, nil, "", StatusPending)
		if result.TotalMatched != 1 || result.Pods[0].Name != "pending-pod" {
			t.Errorf("Classify() with pending filter = %+v, want only pending-pod", result.Pods)
		}
	})

	t.Run("failed filter", func(t *testing.T) {
		result := Classify(pods, nil, "", StatusFailed)
		if result.TotalMatched != 1 || result.Pods[0].Name != "failed-pod" {
			t.Errorf("Classify() with failed filter = %+v, want only failed-pod", result.Pods)
		}
	})
}

func TestClassifySortsFailedBeforePendingThenByRecentEvent(t *testing.T) {
	now := time.Now()
	pods := []akstypes.PodRecord{
		{Name: "pending-old", Phase: "Pending"},
		{Name: "failed-1", Phase: "Failed"},
		{Name: "pending-new", Phase: "Pending"},
	}
	events := []aksclient.PodEvent{
		{PodName: "pending-old", Timestamp: now.Add(-time.Hour)},
		{PodName: "pending-new", Timestamp: now},
	}

	result := Classify(pods, events, "", StatusAll)
	if len(result.Pods) != 3 {
		t.Fatalf("Pods has %d entries, want 3", len(result.Pods))
	}
	if result.Pods[0].Name != "failed-1" {
		t.Errorf("Pods[0] = %q, want failed-1 sorted first", result.Pods[0].Name)
	}
	if result.Pods[1].Name != "pending-new" || result.Pods[2].Name != "pending-old" {
		t.Errorf("Pods[1:] = [%q %q], want pending-new before pending-old by most recent event", result.Pods[1].Name, result.Pods[2].Name)
	}
}

func TestClassifyTruncatesAtMaxSelectedPods(t *testing.T) {
	var pods []akstypes.PodRecord
	for i := 0; i < maxSelectedPods+5; i++ {
		pods = append(pods, akstypes.PodRecord{Name: "pod", Phase: "Failed"})
	}

	result := Classify(pods, nil, "", StatusAll)
	if result.TotalMatched != maxSelectedPods+5 {
		t.Errorf("TotalMatched = %d, want %d", result.TotalMatched, maxSelectedPods+5)
	}
	if !result.Truncated {
		t.Errorf("Truncated = false, want true")
	}
	if len(result.Pods) != maxSelectedPods {
		t.Errorf("len(Pods) = %d, want %d", len(result.Pods), maxSelectedPods)
	}
}

func TestClassifyRecordsOOMContainer(t *testing.T) {
	pods := []akstypes.PodRecord{
		{
			Name: "oom-pod", Phase: "Running",
			Containers: []akstypes.ContainerStatus{
				{Name: "main", Ready: false, LastTerminatedReason: "OOMKilled", MemoryLimit: 268435456},
			},
		},
	}
	result := Classify(pods, nil, "", StatusAll)
	if result.Pods[0].OOMContainer != "main" {
		t.Errorf("OOMContainer = %q, want main", result.Pods[0].OOMContainer)
	}
	if result.Pods[0].OOMMemoryLimit != 268435456 {
		t.Errorf("OOMMemoryLimit = %d, want 268435456", result.Pods[0].OOMMemoryLimit)
	}
}
