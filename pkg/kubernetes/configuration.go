package kubernetes

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ResolveConfig builds a rest.Config for the target cluster: in-cluster
// config when running inside a pod (a service account token is mounted),
// otherwise the kubeconfig at kubeconfigPath, falling back to
// ~/.kube/config when kubeconfigPath is empty. fs is injected so callers
// can exercise both branches against a fake filesystem in tests.
func ResolveConfig(fs afero.Fs, kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	path := kubeconfigPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".kube", "config")
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("check kubeconfig at %s: %w", path, err)
	}
	if !exists {
		return nil, fmt.Errorf("no in-cluster config found and no kubeconfig at %s", path)
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig %s: %w", path, err)
	}
	return cfg, nil
}
