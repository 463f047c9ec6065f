package kubernetes

import "strings"

// Well-known module ids and their reserved canonical names. A module id that
// case-insensitively matches one of these substitutes the reserved name
// instead of being lowercased verbatim.
const (
	ModuleIDEdgeAgent = "edgeAgent"
	ModuleIDEdgeHub   = "edgeHub"

	CanonicalEdgeAgent = "edgeagent"
	CanonicalEdgeHub   = "edgehub"
)

// Identity label keys attached to every object this controller owns.
const (
	LabelModule = "module"
	LabelDevice = "device"
	LabelHub    = "hub"
)

// nameSeparator joins hub and device in both the controller's CR name and
// its Deployment names.
const nameSeparator = "-"

// CanonicalName derives the lowercase, Kubernetes-safe name for a module id,
// substituting the reserved alias for well-known modules.
func CanonicalName(moduleID string) string {
	switch strings.ToLower(moduleID) {
	case strings.ToLower(ModuleIDEdgeAgent):
		return CanonicalEdgeAgent
	case strings.ToLower(ModuleIDEdgeHub):
		return CanonicalEdgeHub
	default:
		return strings.ToLower(moduleID)
	}
}

// IsWellKnown reports whether a module id is one of the reserved system
// modules (agent or hub), used by env.go to decide which extra env bindings
// to inject.
func IsWellKnown(moduleID string) bool {
	lower := strings.ToLower(moduleID)
	return lower == strings.ToLower(ModuleIDEdgeAgent) || lower == strings.ToLower(ModuleIDEdgeHub)
}

// IsAgent reports whether a module id is the edge agent, used by volumes.go
// to pick the agent vs. module ConfigMap and by env.go for agent-only env.
func IsAgent(moduleID string) bool {
	return strings.ToLower(moduleID) == strings.ToLower(ModuleIDEdgeAgent)
}

// Labels returns the three identity labels every owned object carries.
func Labels(deviceID, hubHostname, moduleID string) map[string]string {
	return map[string]string{
		LabelModule: CanonicalName(moduleID),
		LabelDevice: deviceID,
		LabelHub:    hubHostname,
	}
}

// DeploymentName derives the Deployment name for a module:
// <hub>-<device>-<canonical>-deployment, lowercased.
func DeploymentName(hubHostname, deviceID, moduleID string) string {
	name := strings.Join([]string{hubHostname, deviceID, CanonicalName(moduleID), "deployment"}, nameSeparator)
	return strings.ToLower(name)
}

// ServiceName is the canonical module name; Services are named the same way
// Pods select on the module label.
func ServiceName(moduleID string) string {
	return CanonicalName(moduleID)
}

// ControllerResourceName is the CR name this controller instance serves:
// <hub><sep><device>. Only CR events whose metadata name equals this are
// honored.
func ControllerResourceName(hubHostname, deviceID string) string {
	return hubHostname + nameSeparator + deviceID
}

// LabelSelector builds the `device=<deviceId>,hub=<hubHostname>` selector
// used to list every object this controller owns.
func LabelSelector(deviceID, hubHostname string) string {
	return LabelDevice + "=" + deviceID + "," + LabelHub + "=" + hubHostname
}
