package kubernetes

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const dockerConfigJSONKey = ".dockerconfigjson"

type dockerConfigJSON struct {
	Auths map[string]dockerConfigEntry `json:"auths"`
}

type dockerConfigEntry struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Auth     string `json:"auth"`
}

// secretName derives a stable name from a credential's content, so the same
// credential always maps to the same Secret.
func secretName(auth RegistryAuth) string {
	sum := sha256.Sum256([]byte(auth.ServerAddress + "|" + auth.Username + "|" + auth.Password))
	return fmt.Sprintf("regcred-%x", sum[:8])
}

// dockerConfigJSONBytes serializes a registry credential into the single
// .dockerconfigjson payload a dockerconfigjson Secret carries.
func dockerConfigJSONBytes(auth RegistryAuth) ([]byte, error) {
	encodedAuth := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
	cfg := dockerConfigJSON{
		Auths: map[string]dockerConfigEntry{
			auth.ServerAddress: {
				Username: auth.Username,
				Password: auth.Password,
				Auth:     encodedAuth,
			},
		},
	}
	return json.Marshal(cfg)
}

// BuildImagePullSecrets derives one dockerconfigjson Secret per unique
// credential across all modules, keyed by its deterministic name so
// duplicate credentials collapse.
func BuildImagePullSecrets(modules []Module, secretNamespace string) (map[string]*corev1.Secret, error) {
	secrets := map[string]*corev1.Secret{}

	for _, m := range modules {
		if m.Spec.Auth == nil {
			continue
		}
		name := secretName(*m.Spec.Auth)
		if _, ok := secrets[name]; ok {
			continue
		}
		data, err := dockerConfigJSONBytes(*m.Spec.Auth)
		if err != nil {
			return nil, fmt.Errorf("marshal dockerconfigjson for module %s: %w", m.Identity.ModuleID, err)
		}
		secrets[name] = &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: secretNamespace,
			},
			Type: corev1.SecretTypeDockerConfigJson,
			Data: map[string][]byte{
				dockerConfigJSONKey: data,
			},
		}
	}

	return secrets, nil
}

// ReconcileSecrets applies the desired secret set: create if absent, replace
// if the .dockerconfigjson bytes differ, leave alone otherwise. Secrets live
// in secretNamespace, which comes from the --secret-namespace flag (default
// "default") independently of the workload namespace.
func ReconcileSecrets(ctx context.Context, clientset kubernetes.Interface, secretNamespace string, desired map[string]*corev1.Secret) error {
	client := clientset.CoreV1().Secrets(secretNamespace)

	for name, secret := range desired {
		existing, err := client.Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			if _, err := client.Create(ctx, secret, metav1.CreateOptions{}); err != nil {
				return fmt.Errorf("create secret %s: %w", name, err)
			}
			log.Infof("created image-pull secret %s/%s", secretNamespace, name)
			continue
		}
		if err != nil {
			return fmt.Errorf("get secret %s: %w", name, err)
		}
		if bytes.Equal(existing.Data[dockerConfigJSONKey], secret.Data[dockerConfigJSONKey]) {
			continue
		}
		existing.Data = secret.Data
		if _, err := client.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return fmt.Errorf("update secret %s: %w", name, err)
		}
		log.Infof("updated image-pull secret %s/%s", secretNamespace, name)
	}

	return nil
}
