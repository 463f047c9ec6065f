package kubernetes

import (
	"encoding/json"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// CreationStringAnnotation stores the JSON of an owned object as last
// written by this controller; it is the reference for equality in the Diff
// Engine, not the live cluster object.
const CreationStringAnnotation = "creation-string"

// ProxyImage is the fixed sidecar injected into every module pod.
const ProxyImage = "envoyproxy/envoy:latest"

// DesiredModule is the object set the Resource Synthesizer produces for one
// module: a Deployment always, a Service only when the module exposes ports.
type DesiredModule struct {
	Service    *corev1.Service
	Deployment *appsv1.Deployment
}

// Synthesize builds the desired Service and Deployment for a single docker
// module. Synthesis is deterministic: same input yields byte-equal desired
// JSON, which is what the Diff Engine's annotation comparison depends on.
// Callers are responsible for skipping modules whose Spec.Type isn't docker.
func Synthesize(cfg ControllerConfig, module Module, logLevel string) (*DesiredModule, error) {
	identityLabels := Labels(cfg.DeviceID, cfg.HubHostname, module.Identity.ModuleID)

	var service *corev1.Service
	if HasPorts(module.Spec.CreateOptions) {
		ports, svcType := BuildServicePorts(module.Spec.CreateOptions)
		service = &corev1.Service{
			TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
			ObjectMeta: metav1.ObjectMeta{
				Name:      ServiceName(module.Identity.ModuleID),
				Namespace: cfg.Namespace,
				Labels:    identityLabels,
			},
			Spec: corev1.ServiceSpec{
				Type:     svcType,
				Selector: identityLabels,
				Ports:    ports,
			},
		}
		if err := stampService(service); err != nil {
			return nil, fmt.Errorf("stamp service %s: %w", service.Name, err)
		}
	}

	podTemplate := buildPodTemplate(cfg, module, identityLabels, logLevel)

	deployment := &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      DeploymentName(cfg.HubHostname, cfg.DeviceID, module.Identity.ModuleID),
			Namespace: cfg.Namespace,
			Labels:    identityLabels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: identityLabels},
			Template: podTemplate,
		},
	}
	if err := stampDeployment(deployment); err != nil {
		return nil, fmt.Errorf("stamp deployment %s: %w", deployment.Name, err)
	}

	return &DesiredModule{Service: service, Deployment: deployment}, nil
}

// buildPodTemplate assembles the two-container pod template: the module
// container and the fixed proxy sidecar, with pod labels being the identity
// labels overlaid with create-options labels (create-options win).
func buildPodTemplate(cfg ControllerConfig, module Module, identityLabels map[string]string, logLevel string) corev1.PodTemplateSpec {
	volumes, moduleMounts := BuildVolumes(module.Identity.ModuleID, module.Spec.CreateOptions)
	env := BuildEnv(module.Identity, module.Spec, logLevel)

	moduleContainer := corev1.Container{
		Name:         CanonicalName(module.Identity.ModuleID),
		Image:        module.Spec.Image,
		Env:          env,
		VolumeMounts: moduleMounts,
		Ports:        BuildContainerPorts(module.Spec.CreateOptions),
	}
	if module.Spec.CreateOptions.HostConfig.Privileged {
		moduleContainer.SecurityContext = &corev1.SecurityContext{Privileged: ptr.To(true)}
	}

	proxyContainer := corev1.Container{
		Name:         proxyContainerName,
		Image:        ProxyImage,
		Env:          env,
		VolumeMounts: BuildProxyMounts(),
	}

	podLabels := make(map[string]string, len(identityLabels)+len(module.Spec.CreateOptions.Labels))
	for k, v := range identityLabels {
		podLabels[k] = v
	}
	for k, v := range module.Spec.CreateOptions.Labels {
		podLabels[k] = v
	}

	podSpec := corev1.PodSpec{
		Containers: []corev1.Container{moduleContainer, proxyContainer},
		Volumes:    volumes,
	}
	if module.Spec.Auth != nil {
		podSpec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: secretName(*module.Spec.Auth)}}
	}

	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
		Spec:       podSpec,
	}
}

// stampService and stampDeployment JSON-encode the object as it stands
// (before the annotation is attached) and record that encoding as the
// creation-string annotation, so the annotation is self-consistent with
// what the diff engine later decodes as "previous desired".
func stampService(svc *corev1.Service) error {
	data, err := json.Marshal(svc)
	if err != nil {
		return err
	}
	if svc.Annotations == nil {
		svc.Annotations = map[string]string{}
	}
	svc.Annotations[CreationStringAnnotation] = string(data)
	return nil
}

func stampDeployment(dep *appsv1.Deployment) error {
	data, err := json.Marshal(dep)
	if err != nil {
		return err
	}
	if dep.Annotations == nil {
		dep.Annotations = map[string]string{}
	}
	dep.Annotations[CreationStringAnnotation] = string(data)
	return nil
}
