package kubernetes

import "time"

// ModuleType is the workload type declared on a module spec. Only docker is
// ever reconciled; anything else is logged and skipped.
type ModuleType string

const (
	ModuleTypeDocker ModuleType = "docker"
)

// CredentialScheme identifies how a module authenticates to its hub.
type CredentialScheme string

const (
	CredentialSchemeSASToken CredentialScheme = "sasToken"
)

// Credential is the auth scheme plus generation id that, together with
// device/module identity, makes a ModuleIdentity immutable for its lifetime.
type Credential struct {
	Scheme     CredentialScheme
	Generation string
}

// ModuleIdentity is the immutable (hub, gateway, device, module, credential)
// tuple a module is addressed by. Well-known module ids (edgeAgent, edgeHub)
// get reserved canonical names distinct from their identity id (see naming.go).
type ModuleIdentity struct {
	HubHostname     string
	GatewayHostname string
	DeviceID        string
	ModuleID        string
	Credential      Credential
}

// PortBinding is one hostConfig.portBindings entry for a container port.
type PortBinding struct {
	HostIP   string
	HostPort string
}

// Mount is a structured createOptions.hostConfig.mounts entry. Only
// type == "bind" (case-insensitive) is honored by volumes.go.
type Mount struct {
	Type     string
	Name     string
	Source   string
	Target   string
	ReadOnly bool
}

// RegistryAuth is a module's registry credential, as found on ModuleSpec.Auth.
type RegistryAuth struct {
	Username      string
	Password      string
	ServerAddress string
}

// HostConfig mirrors the subset of a Docker createOptions.hostConfig this
// controller understands: port bindings, bind mounts, structured mounts, and
// the privileged flag.
type HostConfig struct {
	PortBindings map[string][]PortBinding
	Binds        []string
	Mounts       []Mount
	Privileged   bool
}

// CreateOptions is the Docker-flavored half of a module spec: exposed ports,
// host-config bindings/mounts/privileged, env list, and pod labels.
type CreateOptions struct {
	ExposedPorts map[string]struct{}
	HostConfig   HostConfig
	Env          []string
	Labels       map[string]string
}

// ModuleSpec is the declarative input to the reconciler for one module: its
// workload type, image, optional registry auth, create-options, and a
// semantic env map that is overlaid on top of create-options env.
type ModuleSpec struct {
	Type          ModuleType
	Image         string
	Auth          *RegistryAuth
	CreateOptions CreateOptions
	Env           map[string]string
}

// Module pairs a module's identity with its spec, as carried in an
// EdgeDeployment's spec array.
type Module struct {
	Identity ModuleIdentity
	Spec     ModuleSpec
}

// EdgeDeployment is the decoded form of the watched custom resource: a name
// (which must equal the controller's resource name to be honored) and an
// ordered module list.
type EdgeDeployment struct {
	Name            string
	ResourceVersion string
	Modules         []Module
}

// RuntimeStatus is the synthesized state of a module, derived from its pod's
// container status.
type RuntimeStatus string

const (
	StatusRunning RuntimeStatus = "Running"
	StatusFailed  RuntimeStatus = "Failed"
	StatusUnknown RuntimeStatus = "Unknown"
)

// RuntimeRecord is the per-module runtime view the Status Tracker maintains
// and getModules() returns a snapshot of.
type RuntimeRecord struct {
	Name        string
	Status      RuntimeStatus
	Description string
	ExitCode    int32
	StartTime   *time.Time
	ExitTime    *time.Time
	ImageDigest string
}

// SystemInfo is derived from the first node's status for getSystemInfo().
type SystemInfo struct {
	OSType  string
	Arch    string
	Version string
}

// ControllerConfig is the Go-native stand-in for whatever composition root
// wired hub/device identity and namespace values into the excluded outer
// system. It threads through client bootstrap, naming, and the reconciler.
type ControllerConfig struct {
	HubHostname     string
	DeviceID        string
	Namespace       string
	SecretNamespace string
	KubeconfigPath  string
}
