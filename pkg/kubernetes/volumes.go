package kubernetes

import (
	"strings"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"
)

// Reserved system paths and names.
const (
	WorkloadSocketDir     = "/var/run/iotedge"
	ProxyConfigDir        = "/etc/envoy"
	WorkloadVolumeName    = "workload"
	ConfigVolumeName      = "config-volume"
	AgentConfigMapName    = "agentConfigMap"
	ModuleConfigMapName   = "moduleConfigMap"
	proxyContainerName    = "proxy"
	mountTypeBind         = "bind"
)

// configMapNameFor returns the ConfigMap backing the proxy's config-volume:
// the agent gets its own, every other module shares moduleConfigMap.
func configMapNameFor(moduleID string) string {
	if IsAgent(moduleID) {
		return AgentConfigMapName
	}
	return ModuleConfigMapName
}

// systemVolumes returns the two volumes always injected into a module's pod
// spec: an emptyDir "workload" socket directory shared by both containers,
// and a configMap "config-volume" mounted only in the proxy sidecar.
func systemVolumes(moduleID string) []corev1.Volume {
	return []corev1.Volume{
		{
			Name:         WorkloadVolumeName,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
		{
			Name: ConfigVolumeName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: configMapNameFor(moduleID)},
				},
			},
		},
	}
}

// systemModuleMounts returns the module container's only system mount, the
// shared workload socket; systemProxyMounts adds the proxy-only config mount.
func systemModuleMounts() []corev1.VolumeMount {
	return []corev1.VolumeMount{
		{Name: WorkloadVolumeName, MountPath: WorkloadSocketDir},
	}
}

func systemProxyMounts() []corev1.VolumeMount {
	return []corev1.VolumeMount{
		{Name: WorkloadVolumeName, MountPath: WorkloadSocketDir},
		{Name: ConfigVolumeName, MountPath: ProxyConfigDir},
	}
}

// BuildVolumes maps a module's create-options binds and structured mounts
// into Volumes + VolumeMounts, additive to (and ordered after) the two
// system volumes. Duplicate volume names across binds/mounts are the
// caller's responsibility to avoid.
func BuildVolumes(moduleID string, createOptions CreateOptions) ([]corev1.Volume, []corev1.VolumeMount) {
	volumes := systemVolumes(moduleID)
	mounts := systemModuleMounts()

	for _, bind := range createOptions.HostConfig.Binds {
		volume, mount, ok := parseBind(bind)
		if !ok {
			log.Warnf("dropping invalid bind %q", bind)
			continue
		}
		volumes = append(volumes, volume)
		mounts = append(mounts, mount)
	}

	for _, m := range createOptions.HostConfig.Mounts {
		if !strings.EqualFold(m.Type, mountTypeBind) {
			log.Warnf("ignoring mount %q of unsupported type %q", m.Name, m.Type)
			continue
		}
		volumes = append(volumes, corev1.Volume{
			Name: m.Name,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{
					Path: m.Source,
					Type: ptr.To(corev1.HostPathDirectoryOrCreate),
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{
			Name:      m.Name,
			MountPath: m.Target,
			ReadOnly:  m.ReadOnly,
		})
	}

	return volumes, mounts
}

// BuildProxyMounts returns the proxy sidecar's fixed volume mounts: the
// shared workload socket plus its own config-volume.
func BuildProxyMounts() []corev1.VolumeMount {
	return systemProxyMounts()
}

// parseBind parses a "src:dst[:ro]" bind string into a hostPath Volume and a
// matching VolumeMount.
func parseBind(bind string) (corev1.Volume, corev1.VolumeMount, bool) {
	parts := strings.Split(bind, ":")
	if len(parts) < 2 {
		return corev1.Volume{}, corev1.VolumeMount{}, false
	}
	src, dst := parts[0], parts[1]
	if src == "" || dst == "" {
		return corev1.Volume{}, corev1.VolumeMount{}, false
	}
	readOnly := len(parts) >= 3 && strings.Contains(parts[2], "ro")

	volume := corev1.Volume{
		Name: src,
		VolumeSource: corev1.VolumeSource{
			HostPath: &corev1.HostPathVolumeSource{
				Path: src,
				Type: ptr.To(corev1.HostPathDirectoryOrCreate),
			},
		},
	}
	mount := corev1.VolumeMount{
		Name:      src,
		MountPath: dst,
		ReadOnly:  readOnly,
	}
	return volume, mount, true
}
