package controller

import (
	"context"
	"fmt"

	"github.com/avranju/iotedge-k8s/pkg/kubernetes"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Reconciler drives the full converge step for one device: list current
// owned state, diff it against synthesized desired state, and apply the
// result in ordered phases.
type Reconciler struct {
	k8s      *kubernetes.Kubernetes
	cfg      kubernetes.ControllerConfig
	logLevel string
}

// NewReconciler builds a Reconciler bound to a single device's identity.
func NewReconciler(k8s *kubernetes.Kubernetes, cfg kubernetes.ControllerConfig, logLevel string) *Reconciler {
	return &Reconciler{k8s: k8s, cfg: cfg, logLevel: logLevel}
}

// HandleEvent is the CR watch entry point. Events for any CR other than
// this controller's own resource name are ignored and logged at debug.
func (r *Reconciler) HandleEvent(ctx context.Context, eventType watch.EventType, obj *unstructured.Unstructured) {
	resourceName := kubernetes.ControllerResourceName(r.cfg.HubHostname, r.cfg.DeviceID)
	if obj.GetName() != resourceName {
		log.Debugf("ignoring CR event for %q, serving %q", obj.GetName(), resourceName)
		return
	}

	switch eventType {
	case watch.Error:
		log.Errorf("CR watch delivered an error event for %q", resourceName)

	case watch.Deleted:
		if err := r.deleteAll(ctx); err != nil {
			log.Errorf("delete owned objects for %q: %v", resourceName, err)
		}

	case watch.Added, watch.Modified:
		deployment, err := kubernetes.DecodeEdgeDeployment(obj)
		if err != nil {
			log.Errorf("decode CR %q: %v", resourceName, err)
			return
		}
		if err := r.converge(ctx, deployment); err != nil {
			log.Errorf("reconcile %q: %v", resourceName, err)
		}

	default:
		log.Debugf("ignoring CR event of type %s for %q", eventType, resourceName)
	}
}

// converge lists current owned Services and Deployments, reconciles
// image-pull Secrets, synthesizes desired state for every docker module,
// diffs desired against observed, and applies the result: deletes, then
// creates, then updates.
func (r *Reconciler) converge(ctx context.Context, deployment *kubernetes.EdgeDeployment) error {
	selector, err := labels.Parse(kubernetes.LabelSelector(r.cfg.DeviceID, r.cfg.HubHostname))
	if err != nil {
		return fmt.Errorf("parse label selector: %w", err)
	}

	var observedServices corev1.ServiceList
	if err := r.k8s.CtrlClient.List(ctx, &observedServices, client.InNamespace(r.cfg.Namespace), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	var observedDeployments appsv1.DeploymentList
	if err := r.k8s.CtrlClient.List(ctx, &observedDeployments, client.InNamespace(r.cfg.Namespace), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return fmt.Errorf("list deployments: %w", err)
	}

	secrets, err := kubernetes.BuildImagePullSecrets(deployment.Modules, r.cfg.SecretNamespace)
	if err != nil {
		return fmt.Errorf("build image-pull secrets: %w", err)
	}
	if err := kubernetes.ReconcileSecrets(ctx, r.k8s.ClientSet, r.cfg.SecretNamespace, secrets); err != nil {
		log.Errorf("reconcile image-pull secrets: %v", err)
	}

	desiredServices := map[string]*corev1.Service{}
	desiredDeployments := map[string]*appsv1.Deployment{}
	for _, m := range deployment.Modules {
		if m.Spec.Type != kubernetes.ModuleTypeDocker {
			log.Warnf("skipping module %s of unsupported type %q", m.Identity.ModuleID, m.Spec.Type)
			continue
		}
		desired, err := kubernetes.Synthesize(r.cfg, m, r.logLevel)
		if err != nil {
			log.Errorf("synthesize module %s: %v", m.Identity.ModuleID, err)
			continue
		}
		if desired.Service != nil {
			desiredServices[desired.Service.Name] = desired.Service
		}
		desiredDeployments[desired.Deployment.Name] = desired.Deployment
	}

	serviceCreates, serviceDeletes := planServices(desiredServices, indexServices(observedServices.Items))
	deploymentCreates, deploymentUpdates, deploymentDeletes := planDeployments(desiredDeployments, indexDeployments(observedDeployments.Items))

	if err := r.deleteServices(ctx, serviceDeletes); err != nil {
		log.Errorf("delete services: %v", err)
	}
	if err := r.deleteDeployments(ctx, deploymentDeletes); err != nil {
		log.Errorf("delete deployments: %v", err)
	}
	if err := r.createServices(ctx, serviceCreates); err != nil {
		log.Errorf("create services: %v", err)
	}
	if err := r.createDeployments(ctx, deploymentCreates); err != nil {
		log.Errorf("create deployments: %v", err)
	}
	if err := r.updateDeployments(ctx, deploymentUpdates); err != nil {
		log.Errorf("update deployments: %v", err)
	}

	return nil
}

// deleteAll removes every Service and Deployment matching the device
// selector, used when the CR itself is deleted.
func (r *Reconciler) deleteAll(ctx context.Context) error {
	selector, err := labels.Parse(kubernetes.LabelSelector(r.cfg.DeviceID, r.cfg.HubHostname))
	if err != nil {
		return fmt.Errorf("parse label selector: %w", err)
	}

	var services corev1.ServiceList
	if err := r.k8s.CtrlClient.List(ctx, &services, client.InNamespace(r.cfg.Namespace), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	var deployments appsv1.DeploymentList
	if err := r.k8s.CtrlClient.List(ctx, &deployments, client.InNamespace(r.cfg.Namespace), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return fmt.Errorf("list deployments: %w", err)
	}

	if err := r.deleteServices(ctx, toPointers(services.Items)); err != nil {
		return err
	}
	return r.deleteDeployments(ctx, toPointersDeployments(deployments.Items))
}

// planServices classifies desired vs. observed Services into creates and
// deletes: desired-only names create, observed-only names delete, and
// names present in both go through the Diff Engine (which itself may
// produce a delete+create pair, never an in-place update).
func planServices(desired, observed map[string]*corev1.Service) (creates, deletes []*corev1.Service) {
	for name, d := range desired {
		live, ok := observed[name]
		if !ok {
			creates = append(creates, d)
			continue
		}
		for _, change := range kubernetes.DiffService(d, live) {
			switch change.Kind {
			case kubernetes.Create:
				creates = append(creates, change.Desired)
			case kubernetes.Delete:
				deletes = append(deletes, change.Desired)
			}
		}
	}
	for name, live := range observed {
		if _, ok := desired[name]; !ok {
			deletes = append(deletes, live)
		}
	}
	return creates, deletes
}

// planDeployments mirrors planServices for Deployments, which do support
// in-place updates.
func planDeployments(desired, observed map[string]*appsv1.Deployment) (creates, updates, deletes []*appsv1.Deployment) {
	for name, d := range desired {
		live, ok := observed[name]
		if !ok {
			creates = append(creates, d)
			continue
		}
		switch change := kubernetes.DiffDeployment(d, live); change.Kind {
		case kubernetes.Create:
			creates = append(creates, change.Desired)
		case kubernetes.Update:
			updates = append(updates, change.Desired)
		}
	}
	for name, live := range observed {
		if _, ok := desired[name]; !ok {
			deletes = append(deletes, live)
		}
	}
	return creates, updates, deletes
}

func indexServices(items []corev1.Service) map[string]*corev1.Service {
	out := make(map[string]*corev1.Service, len(items))
	for i := range items {
		out[items[i].Name] = &items[i]
	}
	return out
}

func indexDeployments(items []appsv1.Deployment) map[string]*appsv1.Deployment {
	out := make(map[string]*appsv1.Deployment, len(items))
	for i := range items {
		out[items[i].Name] = &items[i]
	}
	return out
}

func toPointers(items []corev1.Service) []*corev1.Service {
	out := make([]*corev1.Service, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}

func toPointersDeployments(items []appsv1.Deployment) []*appsv1.Deployment {
	out := make([]*appsv1.Deployment, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}

// Each delete/create/update helper below applies one phase concurrently. A failing item is
// logged and does not prevent its siblings in the same batch from
// applying; the next CR event re-converges whatever didn't land.

func (r *Reconciler) deleteServices(ctx context.Context, services []*corev1.Service) error {
	var g errgroup.Group
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			if err := r.k8s.CtrlClient.Delete(ctx, svc); err != nil && !apierrors.IsNotFound(err) {
				log.Errorf("delete service %s/%s: %v", svc.Namespace, svc.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) deleteDeployments(ctx context.Context, deployments []*appsv1.Deployment) error {
	var g errgroup.Group
	for _, dep := range deployments {
		dep := dep
		g.Go(func() error {
			if err := r.k8s.CtrlClient.Delete(ctx, dep); err != nil && !apierrors.IsNotFound(err) {
				log.Errorf("delete deployment %s/%s: %v", dep.Namespace, dep.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) createServices(ctx context.Context, services []*corev1.Service) error {
	var g errgroup.Group
	for _, svc := range services {
		svc := svc.DeepCopy()
		g.Go(func() error {
			if err := r.k8s.CtrlClient.Create(ctx, svc); err != nil && !apierrors.IsAlreadyExists(err) {
				log.Errorf("create service %s/%s: %v", svc.Namespace, svc.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) createDeployments(ctx context.Context, deployments []*appsv1.Deployment) error {
	var g errgroup.Group
	for _, dep := range deployments {
		dep := dep.DeepCopy()
		g.Go(func() error {
			if err := r.k8s.CtrlClient.Create(ctx, dep); err != nil && !apierrors.IsAlreadyExists(err) {
				log.Errorf("create deployment %s/%s: %v", dep.Namespace, dep.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) updateDeployments(ctx context.Context, deployments []*appsv1.Deployment) error {
	var g errgroup.Group
	for _, dep := range deployments {
		dep := dep
		g.Go(func() error {
			if err := r.k8s.CtrlClient.Update(ctx, dep); err != nil {
				log.Errorf("update deployment %s/%s: %v", dep.Namespace, dep.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
