package controller

import (
	"context"
	"fmt"

	"github.com/avranju/iotedge-k8s/pkg/health"
	"github.com/avranju/iotedge-k8s/pkg/kubernetes"
	"github.com/spf13/afero"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Controller is the top-level wiring of one device's edge agent: the
// client bootstrap, the Status Tracker, the Reconciler, and the Watch
// Supervisor that drives both.
type Controller struct {
	k8s        *kubernetes.Kubernetes
	cfg        kubernetes.ControllerConfig
	tracker    *StatusTracker
	supervisor *WatchSupervisor
	health     *health.HealthChecker

	cancel context.CancelFunc
	done   chan struct{}
}

// New resolves cluster credentials, builds every client surface, ensures
// the EdgeDeployment CRD is registered, and wires the Status Tracker,
// Reconciler, and Watch Supervisor together. It does not start watching;
// call Run for that.
func New(ctx context.Context, cfg kubernetes.ControllerConfig, fs afero.Fs, logLevel string) (*Controller, error) {
	restCfg, err := kubernetes.ResolveConfig(fs, cfg.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve cluster credentials: %w", err)
	}

	k8sClient, err := kubernetes.NewKubernetes(restCfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clients: %w", err)
	}

	if err := k8sClient.EnsureCRD(ctx); err != nil {
		return nil, fmt.Errorf("ensure EdgeDeployment CRD: %w", err)
	}

	tracker := NewStatusTracker()
	reconciler := NewReconciler(k8sClient, cfg, logLevel)
	checker := health.NewHealthChecker()
	supervisor := NewWatchSupervisor(k8sClient, cfg, reconciler, tracker, checker)

	return &Controller{
		k8s:        k8sClient,
		cfg:        cfg,
		tracker:    tracker,
		supervisor: supervisor,
		health:     checker,
		done:       make(chan struct{}),
	}, nil
}

// HealthChecker exposes the liveness/readiness state the Watch Supervisor
// flips once both watches are established, for the diagnostics HTTP
// surface to serve.
func (c *Controller) HealthChecker() *health.HealthChecker {
	return c.health
}

// Run blocks dispatching CR and Pod events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer close(c.done)

	return c.supervisor.Run(runCtx)
}

// GetModules returns a snapshot of every module's current runtime record.
func (c *Controller) GetModules(ctx context.Context) ([]kubernetes.RuntimeRecord, error) {
	return c.tracker.GetModules(ctx)
}

// GetSystemInfo reports OS type, architecture, and Kubernetes version as
// observed on the cluster's first node.
func (c *Controller) GetSystemInfo(ctx context.Context) (kubernetes.SystemInfo, error) {
	nodes, err := c.k8s.ClientSet.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return kubernetes.SystemInfo{}, fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return kubernetes.SystemInfo{}, fmt.Errorf("no nodes found in cluster")
	}

	info := nodes.Items[0].Status.NodeInfo
	return kubernetes.SystemInfo{
		OSType:  info.OperatingSystem,
		Arch:    info.Architecture,
		Version: info.KubeletVersion,
	}, nil
}

// Close stops the watch supervisor and waits for it to drain, honoring
// ctx's deadline as the cancellation budget for that wait.
func (c *Controller) Close(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.k8s.Close()
	return nil
}
