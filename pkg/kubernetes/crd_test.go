package kubernetes

import (
	"context"
	"testing"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestEnsureCRDCreatesWhenAbsent(t *testing.T) {
	client := apiextensionsfake.NewSimpleClientset()
	k := &Kubernetes{APIExtClient: client}

	if err := k.EnsureCRD(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	crd, err := client.ApiextensionsV1().CustomResourceDefinitions().Get(context.Background(), crdName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected CRD to be created: %v", err)
	}
	if crd.Spec.Group != CRDGroup || crd.Spec.Names.Kind != CRDKind {
		t.Errorf("unexpected CRD spec: %+v", crd.Spec)
	}
}

func TestEnsureCRDNoopWhenPresent(t *testing.T) {
	existing := &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: crdName},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: CRDGroup,
			Names: apiextensionsv1.CustomResourceDefinitionNames{Plural: CRDPlural, Kind: CRDKind},
			Scope: apiextensionsv1.ClusterScoped,
		},
	}
	client := apiextensionsfake.NewSimpleClientset(existing)
	k := &Kubernetes{APIExtClient: client}

	if err := k.EnsureCRD(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
