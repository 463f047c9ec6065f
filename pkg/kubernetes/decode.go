package kubernetes

import (
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Wire shapes for the EdgeDeployment custom resource body: JSON with
// camelCase fields, spec an array of (module, moduleIdentity) pairs.

type wireCredential struct {
	Scheme     string `json:"scheme"`
	Generation string `json:"generation"`
}

type wireModuleIdentity struct {
	Hub         string         `json:"hub"`
	Gateway     string         `json:"gateway"`
	Device      string         `json:"device"`
	Module      string         `json:"module"`
	Credentials wireCredential `json:"credentials"`
}

type wireRegistryAuth struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ServerAddress string `json:"serverAddress"`
}

type wirePortBinding struct {
	HostIP   string `json:"hostIp"`
	HostPort string `json:"hostPort"`
}

type wireMount struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readOnly"`
}

type wireHostConfig struct {
	PortBindings map[string][]wirePortBinding `json:"portBindings"`
	Binds        []string                     `json:"binds"`
	Mounts       []wireMount                  `json:"mounts"`
	Privileged   bool                         `json:"privileged"`
}

type wireCreateOptions struct {
	ExposedPorts map[string]struct{} `json:"exposedPorts"`
	HostConfig   wireHostConfig      `json:"hostConfig"`
	Env          []string            `json:"env"`
	Labels       map[string]string   `json:"labels"`
}

type wireModule struct {
	Type          string            `json:"type"`
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Image         string            `json:"image"`
	CreateOptions wireCreateOptions `json:"createOptions"`
	Env           map[string]string `json:"env"`
	Auth          *wireRegistryAuth `json:"auth"`
	DesiredStatus string            `json:"desiredStatus"`
	RestartPolicy string            `json:"restartPolicy"`
}

type wireModuleEntry struct {
	Module         wireModule         `json:"module"`
	ModuleIdentity wireModuleIdentity `json:"moduleIdentity"`
}

type wireEdgeDeployment struct {
	Spec []wireModuleEntry `json:"spec"`
}

// DecodeEdgeDeployment maps a watched EdgeDeployment custom resource,
// received as unstructured JSON from the dynamic client, onto the
// controller's internal data model. A deserialization failure is returned
// to the caller to log and drop; it never panics on malformed input.
func DecodeEdgeDeployment(obj *unstructured.Unstructured) (*EdgeDeployment, error) {
	raw, err := json.Marshal(obj.Object)
	if err != nil {
		return nil, fmt.Errorf("marshal unstructured CR: %w", err)
	}

	var wire wireEdgeDeployment
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal CR spec: %w", err)
	}

	modules := make([]Module, 0, len(wire.Spec))
	for _, entry := range wire.Spec {
		modules = append(modules, Module{
			Identity: ModuleIdentity{
				HubHostname:     entry.ModuleIdentity.Hub,
				GatewayHostname: entry.ModuleIdentity.Gateway,
				DeviceID:        entry.ModuleIdentity.Device,
				ModuleID:        entry.ModuleIdentity.Module,
				Credential: Credential{
					Scheme:     CredentialScheme(entry.ModuleIdentity.Credentials.Scheme),
					Generation: entry.ModuleIdentity.Credentials.Generation,
				},
			},
			Spec: ModuleSpec{
				Type:          ModuleType(entry.Module.Type),
				Image:         entry.Module.Image,
				Auth:          decodeAuth(entry.Module.Auth),
				CreateOptions: decodeCreateOptions(entry.Module.CreateOptions),
				Env:           entry.Module.Env,
			},
		})
	}

	return &EdgeDeployment{
		Name:            obj.GetName(),
		ResourceVersion: obj.GetResourceVersion(),
		Modules:         modules,
	}, nil
}

func decodeAuth(auth *wireRegistryAuth) *RegistryAuth {
	if auth == nil {
		return nil
	}
	return &RegistryAuth{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.ServerAddress,
	}
}

func decodeCreateOptions(co wireCreateOptions) CreateOptions {
	bindings := make(map[string][]PortBinding, len(co.HostConfig.PortBindings))
	for port, bs := range co.HostConfig.PortBindings {
		mapped := make([]PortBinding, len(bs))
		for i, b := range bs {
			mapped[i] = PortBinding{HostIP: b.HostIP, HostPort: b.HostPort}
		}
		bindings[port] = mapped
	}

	mounts := make([]Mount, len(co.HostConfig.Mounts))
	for i, m := range co.HostConfig.Mounts {
		mounts[i] = Mount{
			Type:     m.Type,
			Name:     m.Name,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		}
	}

	return CreateOptions{
		ExposedPorts: co.ExposedPorts,
		HostConfig: HostConfig{
			PortBindings: bindings,
			Binds:        co.HostConfig.Binds,
			Mounts:       mounts,
			Privileged:   co.HostConfig.Privileged,
		},
		Env:    co.Env,
		Labels: co.Labels,
	}
}
