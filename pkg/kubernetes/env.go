package kubernetes

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
)

// Reserved values injected into every module's environment.
const (
	EnvAuthScheme  = "sasToken"
	EnvGatewayHost = "edgehub"
	EnvNetworkID   = "azure-iot-edge"
	EnvMode        = "kubernetes"

	WorkloadURI   = "unix:///var/run/iotedge/workload.sock"
	ManagementURI = "unix:///var/run/iotedge/mgmt.sock"

	WorkloadAPIVersion = "2019-01-30"
)

// Injected env var names.
const (
	envHubHostname    = "IOTEDGE_IOTHUBHOSTNAME"
	envAuthScheme     = "IOTEDGE_AUTHSCHEME"
	envLogLevel       = "RuntimeLogLevel"
	envWorkloadURI    = "IOTEDGE_WORKLOADURI"
	envGatewayHost    = "IOTEDGE_GATEWAYHOSTNAME"
	envModuleGenID    = "IOTEDGE_MODULEGENERATIONID"
	envDeviceID       = "IOTEDGE_DEVICEID"
	envModuleID       = "IOTEDGE_MODULEID"
	envAPIVersion     = "IOTEDGE_APIVERSION"
	envMode           = "IOTEDGE_MODE"
	envManagementURI  = "IOTEDGE_MANAGEMENTURI"
	envNetworkID      = "IOTEDGE_NETWORKID"
	envEdgeDeviceHost = "EdgeDeviceHostName"
)

// BuildEnv assembles the final env list for a module container: the
// semantic env map, create-options env (first-'='-only, one-sided entries
// dropped), the fixed injected set, and well-known-module-only extras.
func BuildEnv(identity ModuleIdentity, spec ModuleSpec, logLevel string) []corev1.EnvVar {
	var env []corev1.EnvVar
	seen := map[string]bool{}

	add := func(name, value string) {
		if seen[name] {
			return
		}
		seen[name] = true
		env = append(env, corev1.EnvVar{Name: name, Value: value})
	}

	envKeys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		add(k, spec.Env[k])
	}

	for _, entry := range spec.CreateOptions.Env {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			log.Warnf("dropping one-sided env entry %q", entry)
			continue
		}
		add(parts[0], parts[1])
	}

	add(envHubHostname, identity.HubHostname)
	add(envAuthScheme, EnvAuthScheme)
	add(envLogLevel, logLevel)
	add(envWorkloadURI, WorkloadURI)
	add(envGatewayHost, EnvGatewayHost)
	add(envModuleGenID, identity.Credential.Generation)
	add(envDeviceID, identity.DeviceID)
	add(envModuleID, identity.ModuleID)
	add(envAPIVersion, WorkloadAPIVersion)

	if IsWellKnown(identity.ModuleID) {
		if IsAgent(identity.ModuleID) {
			add(envMode, EnvMode)
			add(envManagementURI, ManagementURI)
			add(envNetworkID, EnvNetworkID)
		}
		add(envEdgeDeviceHost, identity.DeviceID)
	}

	return env
}
