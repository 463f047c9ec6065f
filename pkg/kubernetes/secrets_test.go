package kubernetes

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestSecretNameDeterministic(t *testing.T) {
	auth := RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	if secretName(auth) != secretName(auth) {
		t.Fatal("expected secretName to be stable for identical input")
	}
	other := RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "different"}
	if secretName(auth) == secretName(other) {
		t.Fatal("expected different credentials to yield different names")
	}
}

// Duplicate credentials across modules collapse into a single Secret.
func TestBuildImagePullSecretsDedupesIdenticalCredentials(t *testing.T) {
	auth := RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	modules := []Module{
		{Identity: ModuleIdentity{ModuleID: "m1"}, Spec: ModuleSpec{Auth: &auth}},
		{Identity: ModuleIdentity{ModuleID: "m2"}, Spec: ModuleSpec{Auth: &auth}},
		{Identity: ModuleIdentity{ModuleID: "m3"}, Spec: ModuleSpec{}},
	}
	secrets, err := BuildImagePullSecrets(modules, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secrets) != 1 {
		t.Fatalf("expected 1 deduplicated secret, got %d", len(secrets))
	}
	for _, s := range secrets {
		if s.Namespace != "default" {
			t.Errorf("expected secret namespace 'default', got %s", s.Namespace)
		}
		if s.Type != corev1.SecretTypeDockerConfigJson {
			t.Errorf("unexpected secret type %s", s.Type)
		}
		if _, ok := s.Data[dockerConfigJSONKey]; !ok {
			t.Error("expected .dockerconfigjson key present")
		}
	}
}

func TestReconcileSecretsCreatesMissing(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	auth := RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	modules := []Module{{Identity: ModuleIdentity{ModuleID: "m1"}, Spec: ModuleSpec{Auth: &auth}}}
	desired, err := BuildImagePullSecrets(modules, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ReconcileSecrets(context.Background(), clientset, "default", desired); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list, err := clientset.CoreV1().Secrets("default").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 secret created, got %d", len(list.Items))
	}
}

func TestReconcileSecretsUpdatesOnDifferentContent(t *testing.T) {
	ctx := context.Background()
	auth := RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	modules := []Module{{Identity: ModuleIdentity{ModuleID: "m1"}, Spec: ModuleSpec{Auth: &auth}}}
	desired, err := BuildImagePullSecrets(modules, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var name string
	var existing *corev1.Secret
	for n, s := range desired {
		name = n
		stale := s.DeepCopy()
		stale.Data[dockerConfigJSONKey] = []byte("stale")
		existing = stale
	}

	clientset := fake.NewSimpleClientset(existing)
	if err := ReconcileSecrets(ctx, clientset, "default", desired); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := clientset.CoreV1().Secrets("default").Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(updated.Data[dockerConfigJSONKey]) == "stale" {
		t.Error("expected secret data to be updated")
	}
}

func TestReconcileSecretsNoopWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	auth := RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	modules := []Module{{Identity: ModuleIdentity{ModuleID: "m1"}, Spec: ModuleSpec{Auth: &auth}}}
	desired, err := BuildImagePullSecrets(modules, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var existing *corev1.Secret
	for _, s := range desired {
		existing = s.DeepCopy()
	}

	clientset := fake.NewSimpleClientset(existing)
	if err := ReconcileSecrets(ctx, clientset, "default", desired); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
