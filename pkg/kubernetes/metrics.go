package kubernetes

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
)

// GetNodeMetrics returns CPU and memory metrics for all nodes, or a single
// node when nodeName is non-empty. Used by the diagnose CLI command, not by
// the reconcile loop itself.
func (k *Kubernetes) GetNodeMetrics(ctx context.Context, nodeName string) (*metricsv1beta1.NodeMetricsList, error) {
	if nodeName != "" {
		metric, err := k.MetricsClient.MetricsV1beta1().NodeMetricses().Get(ctx, nodeName, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("get node metrics for %s: %w", nodeName, err)
		}
		return &metricsv1beta1.NodeMetricsList{Items: []metricsv1beta1.NodeMetrics{*metric}}, nil
	}

	list, err := k.MetricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list node metrics: %w", err)
	}
	return list, nil
}
