package kubernetes

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// ParsePortProto parses a "port/proto" string (e.g. "80/tcp") into a port
// number and Kubernetes protocol. proto must be tcp, udp or sctp
// (case-insensitive); the returned protocol is always uppercase. A malformed
// entry reports ok == false so the caller can drop and log it.
func ParsePortProto(s string) (int32, corev1.Protocol, bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	port, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil || port < 0 {
		return 0, "", false
	}
	switch strings.ToUpper(parts[1]) {
	case string(corev1.ProtocolTCP):
		return int32(port), corev1.ProtocolTCP, true
	case string(corev1.ProtocolUDP):
		return int32(port), corev1.ProtocolUDP, true
	case string(corev1.ProtocolSCTP):
		return int32(port), corev1.ProtocolSCTP, true
	default:
		return 0, "", false
	}
}

// BuildContainerPorts emits one ContainerPort per valid exposedPorts entry.
// Host-config port bindings are irrelevant here: container ports always
// reflect what the container itself exposes.
func BuildContainerPorts(createOptions CreateOptions) []corev1.ContainerPort {
	var ports []corev1.ContainerPort
	for _, raw := range sortedPortKeys(createOptions.ExposedPorts) {
		port, proto, ok := ParsePortProto(raw)
		if !ok {
			log.Warnf("dropping invalid exposed port %q", raw)
			continue
		}
		ports = append(ports, corev1.ContainerPort{
			ContainerPort: port,
			Protocol:      proto,
		})
	}
	return ports
}

// BuildServicePorts emits one ServicePort per valid exposedPorts entry.
// hostConfig.portBindings, when present for a port, override its target
// port and classify the module NodePort rather than ClusterIP.
func BuildServicePorts(createOptions CreateOptions) ([]corev1.ServicePort, corev1.ServiceType) {
	var ports []corev1.ServicePort
	serviceType := corev1.ServiceTypeClusterIP

	for _, raw := range sortedPortKeys(createOptions.ExposedPorts) {
		port, proto, ok := ParsePortProto(raw)
		if !ok {
			log.Warnf("dropping invalid exposed port %q", raw)
			continue
		}

		servicePort := corev1.ServicePort{
			Name:       portName(port, proto),
			Port:       port,
			Protocol:   proto,
			TargetPort: intstr.FromInt32(port),
		}

		for _, binding := range createOptions.HostConfig.PortBindings[raw] {
			hostPort, err := strconv.ParseInt(binding.HostPort, 10, 32)
			if err != nil {
				log.Warnf("dropping invalid host port binding %q for %q", binding.HostPort, raw)
				continue
			}
			servicePort.TargetPort = intstr.FromInt32(int32(hostPort))
			serviceType = corev1.ServiceTypeNodePort
		}

		ports = append(ports, servicePort)
	}

	return ports, serviceType
}

// HasPorts reports whether a module's create-options would yield at least
// one port, i.e. whether it needs a Service.
func HasPorts(createOptions CreateOptions) bool {
	ports, _ := BuildServicePorts(createOptions)
	return len(ports) > 0
}

func portName(port int32, proto corev1.Protocol) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(string(proto)), port)
}

// sortedPortKeys returns exposedPorts' keys in a stable order so the
// resulting port slices, and therefore the desired JSON derived from them,
// never depend on Go's randomized map iteration.
func sortedPortKeys(exposedPorts map[string]struct{}) []string {
	keys := make([]string, 0, len(exposedPorts))
	for raw := range exposedPorts {
		keys = append(keys, raw)
	}
	sort.Strings(keys)
	return keys
}
