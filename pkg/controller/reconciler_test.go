package controller

import (
	"testing"

	"github.com/avranju/iotedge-k8s/pkg/kubernetes"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

func testCfg() kubernetes.ControllerConfig {
	return kubernetes.ControllerConfig{
		HubHostname:     "hub1.azure-devices.net",
		DeviceID:        "dev1",
		Namespace:       "microsoft-azure-devices-edge",
		SecretNamespace: "default",
	}
}

func synth(t *testing.T, moduleID, image string, withPort bool) *kubernetes.DesiredModule {
	t.Helper()
	spec := kubernetes.ModuleSpec{Type: kubernetes.ModuleTypeDocker, Image: image}
	if withPort {
		spec.CreateOptions = kubernetes.CreateOptions{ExposedPorts: map[string]struct{}{"80/tcp": {}}}
	}
	module := kubernetes.Module{Identity: kubernetes.ModuleIdentity{ModuleID: moduleID}, Spec: spec}
	desired, err := kubernetes.Synthesize(testCfg(), module, "2")
	if err != nil {
		t.Fatalf("unexpected error synthesizing %s: %v", moduleID, err)
	}
	return desired
}

// An initial deploy of a module with no prior observed state creates its
// Deployment and nothing else.
func TestPlanDeploymentsInitialDeployCreates(t *testing.T) {
	desired := synth(t, "m1", "example/m1:1.0", false)
	desiredDeployments := map[string]*appsv1.Deployment{desired.Deployment.Name: desired.Deployment}

	creates, updates, deletes := planDeployments(desiredDeployments, map[string]*appsv1.Deployment{})
	if len(creates) != 1 || len(updates) != 0 || len(deletes) != 0 {
		t.Fatalf("expected 1 create only, got creates=%d updates=%d deletes=%d", len(creates), len(updates), len(deletes))
	}
}

// Bumping a module's image produces an update, not a create or delete.
func TestPlanDeploymentsImageBumpUpdates(t *testing.T) {
	live := synth(t, "m1", "example/m1:1.0", false)
	live.Deployment.ResourceVersion = "7"
	desired := synth(t, "m1", "example/m1:2.0", false)

	creates, updates, deletes := planDeployments(
		map[string]*appsv1.Deployment{desired.Deployment.Name: desired.Deployment},
		map[string]*appsv1.Deployment{live.Deployment.Name: live.Deployment},
	)
	if len(creates) != 0 || len(deletes) != 0 {
		t.Fatalf("expected no creates/deletes, got creates=%d deletes=%d", len(creates), len(deletes))
	}
	if len(updates) != 1 || updates[0].Spec.Template.Spec.Containers[0].Image != "example/m1:2.0" {
		t.Fatalf("expected 1 update with the new image, got %+v", updates)
	}
	if updates[0].ResourceVersion != "7" {
		t.Errorf("expected resourceVersion carried from live, got %q", updates[0].ResourceVersion)
	}
}

// Removing a module from the CR deletes its owned objects even though
// it's no longer in the desired set.
func TestPlanDeploymentsModuleRemovedDeletes(t *testing.T) {
	live := synth(t, "m1", "example/m1:1.0", false)

	creates, updates, deletes := planDeployments(
		map[string]*appsv1.Deployment{},
		map[string]*appsv1.Deployment{live.Deployment.Name: live.Deployment},
	)
	if len(creates) != 0 || len(updates) != 0 {
		t.Fatalf("expected no creates/updates, got creates=%d updates=%d", len(creates), len(updates))
	}
	if len(deletes) != 1 || deletes[0].Name != live.Deployment.Name {
		t.Fatalf("expected the removed module's deployment to be deleted, got %+v", deletes)
	}
}

func TestPlanDeploymentsNoChangeProducesNothing(t *testing.T) {
	live := synth(t, "m1", "example/m1:1.0", false)
	desired := synth(t, "m1", "example/m1:1.0", false)

	creates, updates, deletes := planDeployments(
		map[string]*appsv1.Deployment{desired.Deployment.Name: desired.Deployment},
		map[string]*appsv1.Deployment{live.Deployment.Name: live.Deployment},
	)
	if len(creates) != 0 || len(updates) != 0 || len(deletes) != 0 {
		t.Errorf("expected no-op for unmodified module, got creates=%d updates=%d deletes=%d", len(creates), len(updates), len(deletes))
	}
}

func TestPlanServicesCreateWhenMissing(t *testing.T) {
	desired := synth(t, "m1", "example/m1:1.0", true)

	creates, deletes := planServices(
		map[string]*corev1.Service{desired.Service.Name: desired.Service},
		map[string]*corev1.Service{},
	)
	if len(creates) != 1 || len(deletes) != 0 {
		t.Fatalf("expected 1 create, got creates=%d deletes=%d", len(creates), len(deletes))
	}
}

func TestPlanServicesRemovedModuleDeletes(t *testing.T) {
	live := synth(t, "m1", "example/m1:1.0", true)

	creates, deletes := planServices(
		map[string]*corev1.Service{},
		map[string]*corev1.Service{live.Service.Name: live.Service},
	)
	if len(creates) != 0 || len(deletes) != 1 {
		t.Fatalf("expected 1 delete, got creates=%d deletes=%d", len(creates), len(deletes))
	}
}

// A host-port binding change on an existing Service produces a
// delete+create pair rather than an update.
func TestPlanServicesTypeChangeDeleteThenCreate(t *testing.T) {
	live := synth(t, "m1", "example/m1:1.0", true)

	desiredModule := kubernetes.Module{
		Identity: kubernetes.ModuleIdentity{ModuleID: "m1"},
		Spec: kubernetes.ModuleSpec{
			Type:  kubernetes.ModuleTypeDocker,
			Image: "example/m1:1.0",
			CreateOptions: kubernetes.CreateOptions{
				ExposedPorts: map[string]struct{}{"80/tcp": {}},
				HostConfig: kubernetes.HostConfig{
					PortBindings: map[string][]kubernetes.PortBinding{"80/tcp": {{HostPort: "30080"}}},
				},
			},
		},
	}
	desired, err := kubernetes.Synthesize(testCfg(), desiredModule, "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	creates, deletes := planServices(
		map[string]*corev1.Service{desired.Service.Name: desired.Service},
		map[string]*corev1.Service{live.Service.Name: live.Service},
	)
	if len(creates) != 1 || len(deletes) != 1 {
		t.Fatalf("expected delete+create pair, got creates=%d deletes=%d", len(creates), len(deletes))
	}
}

// The index helpers that feed planServices/planDeployments must key
// strictly by object name.
func TestIndexHelpersKeyByName(t *testing.T) {
	m1 := synth(t, "m1", "example/m1:1.0", true)
	m2 := synth(t, "m2", "example/m2:1.0", true)

	services := indexServices([]corev1.Service{*m1.Service, *m2.Service})
	if len(services) != 2 {
		t.Fatalf("expected 2 indexed services, got %d", len(services))
	}

	deployments := indexDeployments([]appsv1.Deployment{*m1.Deployment, *m2.Deployment})
	if len(deployments) != 2 {
		t.Fatalf("expected 2 indexed deployments, got %d", len(deployments))
	}
}
