package kubernetes

import (
	"context"
	"fmt"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// CRD identity for the watched custom resource.
const (
	CRDGroup   = "microsoft.azure.devices.edge"
	CRDVersion = "v1beta1"
	CRDPlural  = "edgedeployments"
	CRDSingular = "edgedeployment"
	CRDKind    = "EdgeDeployment"
	CRDListKind = "EdgeDeploymentList"
)

// crdName is the metadata.name CustomResourceDefinitions are addressed by:
// "<plural>.<group>".
var crdName = fmt.Sprintf("%s.%s", CRDPlural, CRDGroup)

// EnsureCRD idempotently creates the EdgeDeployment CustomResourceDefinition
// if it is not already registered. The schema is permissive
// (x-kubernetes-preserve-unknown-fields) because the controller reads the CR
// body through the dynamic client as unstructured JSON, not through a
// generated typed client.
func (k *Kubernetes) EnsureCRD(ctx context.Context) error {
	crds := k.APIExtClient.ApiextensionsV1().CustomResourceDefinitions()

	_, err := crds.Get(ctx, crdName, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("get CRD %s: %w", crdName, err)
	}

	crd := &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: crdName},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: CRDGroup,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:   CRDPlural,
				Singular: CRDSingular,
				Kind:     CRDKind,
				ListKind: CRDListKind,
			},
			Scope: apiextensionsv1.ClusterScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{
					Name:    CRDVersion,
					Served:  true,
					Storage: true,
					Schema: &apiextensionsv1.CustomResourceValidation{
						OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
							Type:                   "object",
							XPreserveUnknownFields: ptr.To(true),
						},
					},
					AdditionalPrinterColumns: []apiextensionsv1.CustomResourceColumnDefinition{
						{Name: "Age", Type: "date", JSONPath: ".metadata.creationTimestamp"},
					},
					Subresources: &apiextensionsv1.CustomResourceSubresources{},
				},
			},
		},
	}

	if _, err := crds.Create(ctx, crd, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("create CRD %s: %w", crdName, err)
	}
	return nil
}

