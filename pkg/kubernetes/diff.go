package kubernetes

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// ChangeKind classifies what the Diff Engine decided to do with an owned object.
type ChangeKind int

const (
	NoChange ChangeKind = iota
	Create
	Update
	Delete
)

func (k ChangeKind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "none"
	}
}

// DeploymentChange is a Deployment paired with the action the Diff Engine
// decided to take on it.
type DeploymentChange struct {
	Kind    ChangeKind
	Desired *appsv1.Deployment
}

// ServiceChange mirrors DeploymentChange for Services.
type ServiceChange struct {
	Kind    ChangeKind
	Desired *corev1.Service
}

// DiffDeployment decides what to do with a desired Deployment given the live
// object currently in the cluster (nil if it doesn't exist). An update
// carries over the live object's resourceVersion so the apiserver's
// optimistic-concurrency check accepts it.
func DiffDeployment(desired, live *appsv1.Deployment) DeploymentChange {
	if live == nil {
		return DeploymentChange{Kind: Create, Desired: desired}
	}
	if deploymentsEqual(desired, live) {
		return DeploymentChange{Kind: NoChange, Desired: desired}
	}
	updated := desired.DeepCopy()
	updated.ResourceVersion = live.ResourceVersion
	return DeploymentChange{Kind: Update, Desired: updated}
}

// DiffService decides what to do with a desired Service given the live
// object (nil if it doesn't exist). Any drift is a delete-then-create pair
// rather than an in-place update: Services are not updated in place here,
// so a change is queued as delete-of-live plus create-of-desired, converging
// over the following reconcile pass.
func DiffService(desired, live *corev1.Service) []ServiceChange {
	if live == nil {
		return []ServiceChange{{Kind: Create, Desired: desired}}
	}
	if servicesEqual(desired, live) {
		return []ServiceChange{{Kind: NoChange, Desired: desired}}
	}
	return []ServiceChange{
		{Kind: Delete, Desired: live},
		{Kind: Create, Desired: desired},
	}
}

// servicesEqual and deploymentsEqual compare desired against the
// previously-applied desired state decoded from live's creation-string
// annotation, not against live itself: the live object carries
// server-populated fields (status, clusterIP, resourceVersion) that would
// otherwise show up as perpetual drift. A missing or corrupt annotation
// falls back to comparing desired against live's own projection and logs a
// warning, since server-populated fields will then usually force an update.
//
// The comparison itself is intentionally weaker than full structural
// equality: apiVersion, kind, name and labels, plus a handful of
// operationally meaningful fields per kind. Anything else that drifts is
// self-healing on the next reconciliation, so it isn't worth the update
// churn of comparing it here.
func deploymentsEqual(desired, live *appsv1.Deployment) bool {
	prev, ok := decodeAnnotation[appsv1.Deployment](live.Annotations)
	if !ok {
		log.Warnf("deployment %s/%s missing or unparsable creation-string annotation, comparing against live object", live.Namespace, live.Name)
		prev = live
	}
	return cmp.Equal(projectDeployment(desired), projectDeployment(prev))
}

func servicesEqual(desired, live *corev1.Service) bool {
	prev, ok := decodeAnnotation[corev1.Service](live.Annotations)
	if !ok {
		log.Warnf("service %s/%s missing or unparsable creation-string annotation, comparing against live object", live.Namespace, live.Name)
		prev = live
	}
	return cmp.Equal(projectService(desired), projectService(prev))
}

func decodeAnnotation[T any](annotations map[string]string) (*T, bool) {
	raw, ok := annotations[CreationStringAnnotation]
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return &v, true
}

// serviceProjection is the subset of a Service the Diff Engine compares:
// apiVersion, kind, metadata (name + labels), and spec type and port count
// only — not the ports themselves.
type serviceProjection struct {
	APIVersion string
	Kind       string
	Name       string
	Labels     map[string]string
	Type       corev1.ServiceType
	PortCount  int
}

func projectService(s *corev1.Service) serviceProjection {
	return serviceProjection{
		APIVersion: s.APIVersion,
		Kind:       s.Kind,
		Name:       s.Name,
		Labels:     s.Labels,
		Type:       s.Spec.Type,
		PortCount:  len(s.Spec.Ports),
	}
}

// deploymentProjection is the subset of a Deployment the Diff Engine
// compares: apiVersion, kind, metadata (name + labels), the pod template's
// metadata (name + labels), and the pairwise-ordered container names and
// images in the pod spec. Volumes and every other container field are
// deliberately ignored at this layer.
type deploymentProjection struct {
	APIVersion      string
	Kind            string
	Name            string
	Labels          map[string]string
	TemplateName    string
	TemplateLabels  map[string]string
	ContainerNames  []string
	ContainerImages []string
}

func projectDeployment(d *appsv1.Deployment) deploymentProjection {
	containers := d.Spec.Template.Spec.Containers
	names := make([]string, len(containers))
	images := make([]string, len(containers))
	for i, c := range containers {
		names[i] = c.Name
		images[i] = c.Image
	}
	return deploymentProjection{
		APIVersion:      d.APIVersion,
		Kind:            d.Kind,
		Name:            d.Name,
		Labels:          d.Labels,
		TemplateName:    d.Spec.Template.Name,
		TemplateLabels:  d.Spec.Template.Labels,
		ContainerNames:  names,
		ContainerImages: images,
	}
}
