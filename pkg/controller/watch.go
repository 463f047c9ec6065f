package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/avranju/iotedge-k8s/pkg/health"
	"github.com/avranju/iotedge-k8s/pkg/kubernetes"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
)

// WatchSupervisor establishes the two long-lived watches the controller
// depends on — a namespaced Pod watch and a cluster-scoped EdgeDeployment
// watch — and dispatches their events to the Status Tracker and Reconciler
// respectively.
type WatchSupervisor struct {
	k8s        *kubernetes.Kubernetes
	cfg        kubernetes.ControllerConfig
	reconciler *Reconciler
	tracker    *StatusTracker
	health     *health.HealthChecker
}

// NewWatchSupervisor wires a supervisor to its dependencies.
func NewWatchSupervisor(k8s *kubernetes.Kubernetes, cfg kubernetes.ControllerConfig, reconciler *Reconciler, tracker *StatusTracker, checker *health.HealthChecker) *WatchSupervisor {
	return &WatchSupervisor{k8s: k8s, cfg: cfg, reconciler: reconciler, tracker: tracker, health: checker}
}

// Run opens both watches and blocks dispatching events until ctx is
// cancelled. A failure to open either watch is fatal: it's returned to the
// caller, which is expected to let the process exit so its orchestrator can
// restart it.
func (s *WatchSupervisor) Run(ctx context.Context) error {
	defer s.health.SetWatchState(health.WatchStopped)

	podWatch, err := s.k8s.ClientSet.CoreV1().Pods(s.cfg.Namespace).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("start pod watch: %w", err)
	}

	crWatch, err := s.k8s.DynamicClient.Resource(edgeDeploymentGVR()).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		podWatch.Stop()
		return fmt.Errorf("start CR watch: %w", err)
	}

	s.health.SetWatchState(health.WatchEstablished)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.dispatchPodEvents(podWatch)
	}()
	go func() {
		defer wg.Done()
		s.dispatchCREvents(ctx, crWatch)
	}()

	<-ctx.Done()
	podWatch.Stop()
	crWatch.Stop()
	wg.Wait()
	return nil
}

func edgeDeploymentGVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{
		Group:    kubernetes.CRDGroup,
		Version:  kubernetes.CRDVersion,
		Resource: kubernetes.CRDPlural,
	}
}

// dispatchPodEvents hands every event from the Pod watch to its own worker
// goroutine, so a slow or misbehaving handler never blocks the watch's
// result channel.
func (s *WatchSupervisor) dispatchPodEvents(w watch.Interface) {
	for event := range w.ResultChan() {
		event := event
		go s.handlePodEvent(event)
	}
}

func (s *WatchSupervisor) handlePodEvent(event watch.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic handling pod event: %v", r)
		}
	}()

	pod, ok := event.Object.(*corev1.Pod)
	if !ok {
		return
	}
	s.tracker.HandlePodEvent(event.Type, pod)
}

// dispatchCREvents mirrors dispatchPodEvents for the CR watch.
func (s *WatchSupervisor) dispatchCREvents(ctx context.Context, w watch.Interface) {
	for event := range w.ResultChan() {
		event := event
		go s.handleCREvent(ctx, event)
	}
}

func (s *WatchSupervisor) handleCREvent(ctx context.Context, event watch.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic handling CR event: %v", r)
		}
	}()

	obj, ok := event.Object.(*unstructured.Unstructured)
	if !ok {
		return
	}
	s.reconciler.HandleEvent(ctx, event.Type, obj)
}
