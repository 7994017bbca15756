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

package aksclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	metricsapi "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/contoso/aks-fleet-mcp/internal/akstypes"
)

const (
	agentPoolLabelPrimary  = "agentpool"
	agentPoolLabelFallback = "kubernetes.azure.com/agentpool"
)

// kubeClients bundles the client-go clientsets built once per cluster
// context and shared by every Kubernetes-facing capability interface.
type kubeClients struct {
	typed   kubernetes.Interface
	metrics metricsv1beta1.Interface
}

// newKubeClients resolves the named context out of the ambient kubeconfig
// using clientcmd's default loading rules and builds the clientsets
// against it. Credential discovery itself
// (the kubeconfig's exec-plugin auth, e.g. kubelogin) is delegated
// entirely to client-go.
func newKubeClients(kubeContext string) (*kubeClients, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve kube context %q: %w", kubeContext, err)
	}

	typed, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes client: %w", err)
	}

	metricsClient, err := metricsv1beta1.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics client: %w", err)
	}

	return &kubeClients{typed: typed, metrics: metricsClient}, nil
}

// nodePodSource is the NodePodSource implementation backed by client-go.
type nodePodSource struct{ c *kubeClients }

func (s *nodePodSource) ListNodes(ctx context.Context) ([]akstypes.NodeRecord, error) {
	list, err := offload(ctx, func() (*corev1.NodeList, error) {
		return s.c.typed.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", akstypes.SourceCoreAPI, err)
	}

	out := make([]akstypes.NodeRecord, 0, len(list.Items))
	for _, n := range list.Items {
		pool, ok := n.Labels[agentPoolLabelPrimary]
		if !ok || pool == "" {
			pool, ok = n.Labels[agentPoolLabelFallback]
		}
		if !ok || pool == "" {
			pool = "unknown-pool"
		}

		cpu := n.Status.Allocatable.Cpu().MilliValue()
		mem := n.Status.Allocatable.Memory().Value()

		out = append(out, akstypes.NodeRecord{
			Name:              n.Name,
			Pool:              pool,
			Unschedulable:     n.Spec.Unschedulable,
			AllocatableCPU:    cpu,
			AllocatableMemory: mem,
			Version:           n.Status.NodeInfo.KubeletVersion,
			Age:               metav1.Now().Sub(n.CreationTimestamp.Time),
		})
	}
	return out, nil
}

func (s *nodePodSource) ListPods(ctx context.Context, namespace string) ([]akstypes.PodRecord, error) {
	list, err := offload(ctx, func() (*corev1.PodList, error) {
		return s.c.typed.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", akstypes.SourceCoreAPI, err)
	}

	out := make([]akstypes.PodRecord, 0, len(list.Items))
	for _, p := range list.Items {
		rec := akstypes.PodRecord{
			Namespace: p.Namespace,
			Name:      p.Name,
			Phase:     string(p.Status.Phase),
			Node:      p.Spec.NodeName,
			Labels:    p.Labels,
		}
		if len(p.OwnerReferences) > 0 {
			rec.OwnerKind = p.OwnerReferences[0].Kind
		}
		for _, c := range p.Spec.Containers {
			rec.CPURequest += c.Resources.Requests.Cpu().MilliValue()
			rec.MemoryRequest += c.Resources.Requests.Memory().Value()
		}
		for _, cs := range p.Status.ContainerStatuses {
			status := akstypes.ContainerStatus{
				Name:         cs.Name,
				Ready:        cs.Ready,
				RestartCount: cs.RestartCount,
			}
			if cs.State.Waiting != nil {
				status.WaitingReason = cs.State.Waiting.Reason
				status.WaitingMessage = cs.State.Waiting.Message
			}
			if cs.LastTerminationState.Terminated != nil {
				status.LastTerminatedReason = cs.LastTerminationState.Terminated.Reason
				status.LastTerminatedMessage = cs.LastTerminationState.Terminated.Message
			}
			for _, c := range p.Spec.Containers {
				if c.Name == cs.Name {
					status.MemoryLimit = c.Resources.Limits.Memory().Value()
				}
			}
			rec.Containers = append(rec.Containers, status)
		}
		out = append(out, rec)
	}
	return out, nil
}

// eventSource is the EventSource implementation backed by client-go's core
// Events API. Node-upgrade lifecycle events are distinguished by the
// conventional AKS node-image-upgrade event reasons (NodeUpgrade,
// NodeReady, NodeNotReady) reported against an involved object of kind
// Node.
type eventSource struct{ c *kubeClients }

func (s *eventSource) ListNodeEvents(ctx context.Context) ([]akstypes.UpgradeEvent, error) {
	list, err := offload(ctx, func() (*corev1.EventList, error) {
		return s.c.typed.CoreV1().Events(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
			FieldSelector: "involvedObject.kind=Node",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", akstypes.SourceEventsAPI, err)
	}

	out := make([]akstypes.UpgradeEvent, 0, len(list.Items))
	for _, e := range list.Items {
		kind, ok := nodeEventKind(e.Reason)
		if !ok {
			continue
		}
		out = append(out, akstypes.UpgradeEvent{
			Kind:      kind,
			Node:      e.InvolvedObject.Name,
			Timestamp: eventTimestamp(e),
			Reason:    e.Reason,
			Message:   e.Message,
		})
	}
	sortEventsByNodeAndTime(out)
	return out, nil
}

func (s *eventSource) ListPodEvents(ctx context.Context, namespace string) ([]PodEvent, error) {
	list, err := offload(ctx, func() (*corev1.EventList, error) {
		return s.c.typed.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
			FieldSelector: "involvedObject.kind=Pod",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", akstypes.SourceEventsAPI, err)
	}

	out := make([]PodEvent, 0, len(list.Items))
	for _, e := range list.Items {
		out = append(out, PodEvent{
			Namespace: e.InvolvedObject.Namespace,
			PodName:   e.InvolvedObject.Name,
			Reason:    e.Reason,
			Message:   e.Message,
			Timestamp: eventTimestamp(e),
		})
	}
	return out, nil
}

func nodeEventKind(reason string) (akstypes.UpgradeEventKind, bool) {
	switch reason {
	case string(akstypes.EventNodeUpgrade):
		return akstypes.EventNodeUpgrade, true
	case string(akstypes.EventNodeReady):
		return akstypes.EventNodeReady, true
	case string(akstypes.EventNodeNotReady):
		return akstypes.EventNodeNotReady, true
	default:
		return "", false
	}
}

func eventTimestamp(e corev1.Event) time.Time {
	if !e.LastTimestamp.IsZero() {
		return e.LastTimestamp.Time
	}
	if !e.EventTime.IsZero() {
		return e.EventTime.Time
	}
	return e.FirstTimestamp.Time
}

func sortEventsByNodeAndTime(events []akstypes.UpgradeEvent) {
	// Stable insertion sort by node name, then timestamp, keeps a
	// deterministic, monotonic-per-node ordering without pulling in a
	// comparator-by-field dependency for five fields.
	for i := 1; i < len(events); i++ {
		for j := i; j > 0; j-- {
			a, b := events[j-1], events[j]
			if a.Node < b.Node {
				break
			}
			if a.Node == b.Node && !a.Timestamp.After(b.Timestamp) {
				break
			}
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
}

// policySource is the PolicySource implementation backed by client-go's
// policy/v1 API. disruptions_allowed is recomputed downstream from the
// live ready count rather than trusted from PDB.Status, which can lag it
// during a rolling upgrade.
type policySource struct{ c *kubeClients }

func (s *policySource) ListPDBs(ctx context.Context) ([]akstypes.PdbRecord, error) {
	list, err := offload(ctx, func() (*policyv1.PodDisruptionBudgetList, error) {
		return s.c.typed.PolicyV1().PodDisruptionBudgets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", akstypes.SourcePolicyAPI, err)
	}

	out := make([]akstypes.PdbRecord, 0, len(list.Items))
	for _, pdb := range list.Items {
		rec := akstypes.PdbRecord{
			Namespace:       pdb.Namespace,
			Name:            pdb.Name,
			CurrentReady:    pdb.Status.CurrentHealthy,
			DesiredReplicas: pdb.Status.DesiredHealthy,
		}
		if pdb.Spec.Selector != nil {
			rec.Selector = pdb.Spec.Selector.MatchLabels
		}
		if pdb.Spec.MinAvailable != nil {
			rec.MinAvailable = fromIntOrString(pdb.Spec.MinAvailable)
		}
		if pdb.Spec.MaxUnavailable != nil {
			rec.MaxUnavailable = fromIntOrString(pdb.Spec.MaxUnavailable)
		}
		out = append(out, rec)
	}
	return out, nil
}

// fromIntOrString converts a PDB's min_available/max_unavailable field.
// intstr.IntOrString's own IntValue() calls strconv.Atoi on the raw string
// value, which fails (and silently returns 0) for the "50%" form PDBs
// actually carry, so the percent sign must be trimmed before parsing.
func fromIntOrString(v *intstr.IntOrString) *akstypes.IntOrPercent {
	if v == nil {
		return nil
	}
	if v.Type == intstr.String {
		pct, _ := strconv.Atoi(strings.TrimSuffix(v.StrVal, "%"))
		return &akstypes.IntOrPercent{IsPercent: true, Value: int32(pct)}
	}
	return &akstypes.IntOrPercent{IsPercent: false, Value: v.IntVal}
}

// metricsSource is the MetricsSource implementation backed by the
// metrics-server aggregated API (metrics.k8s.io/v1beta1).
type metricsSource struct{ c *kubeClients }

func (s *metricsSource) ListNodeMetrics(ctx context.Context) ([]NodeMetric, error) {
	list, err := offload(ctx, func() (*metricsapi.NodeMetricsList, error) {
		return s.c.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	})
	if err != nil {
		return nil, &MetricsUnavailableError{Cause: err}
	}

	out := make([]NodeMetric, 0, len(list.Items))
	for _, m := range list.Items {
		out = append(out, NodeMetric{
			Name:          m.Name,
			CPUMillicores: m.Usage.Cpu().MilliValue(),
			MemoryBytes:   m.Usage.Memory().Value(),
		})
	}
	return out, nil
}
