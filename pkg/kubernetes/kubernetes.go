package kubernetes

import (
	"fmt"

	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"
	k8sclient "k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
)

// Kubernetes bundles every client surface the controller needs against a
// single cluster: the typed clientset for Deployments/Services/Secrets, the
// dynamic client for the EdgeDeployment custom resource, the apiextensions
// clientset for CRD bootstrap, the metrics clientset for node diagnostics,
// and a controller-runtime client the Reconciler uses for structured
// get/create/update/delete against owned objects.
type Kubernetes struct {
	cfg *rest.Config

	ClientSet     k8sclient.Interface
	DynamicClient dynamic.Interface
	APIExtClient  apiextensionsclientset.Interface
	MetricsClient metricsclientset.Interface
	CtrlClient    ctrlclient.Client
}

// NewKubernetes builds every client surface from a single rest.Config. Use
// ResolveConfig to obtain cfg from in-cluster credentials or a kubeconfig.
func NewKubernetes(cfg *rest.Config) (*Kubernetes, error) {
	clientSet, err := k8sclient.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build typed clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build dynamic client: %w", err)
	}
	apiExtClient, err := apiextensionsclientset.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build apiextensions clientset: %w", err)
	}
	metricsClient, err := metricsclientset.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build metrics clientset: %w", err)
	}

	scheme, err := buildScheme()
	if err != nil {
		return nil, fmt.Errorf("build scheme: %w", err)
	}
	httpClient, err := rest.HTTPClientFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}
	mapper, err := apiutil.NewDynamicRESTMapper(cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build rest mapper: %w", err)
	}
	ctrlClient, err := ctrlclient.New(cfg, ctrlclient.Options{HTTPClient: httpClient, Scheme: scheme, Mapper: mapper})
	if err != nil {
		return nil, fmt.Errorf("build controller-runtime client: %w", err)
	}

	return &Kubernetes{
		cfg:           cfg,
		ClientSet:     clientSet,
		DynamicClient: dynamicClient,
		APIExtClient:  apiExtClient,
		MetricsClient: metricsClient,
		CtrlClient:    ctrlClient,
	}, nil
}

func buildScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, err
	}
	return scheme, nil
}

// Close releases nothing today; it exists so callers can defer it
// symmetrically, and so a future client with real teardown (a shared
// informer factory, say) slots in without changing call sites.
func (k *Kubernetes) Close() {}
