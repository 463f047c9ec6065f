package kubernetes

import "testing"

func TestBuildVolumesIncludesSystemVolumes(t *testing.T) {
	volumes, mounts := BuildVolumes("m1", CreateOptions{})
	if len(volumes) != 2 || len(mounts) != 1 {
		t.Fatalf("expected 2 system volumes and 1 system mount, got %d/%d", len(volumes), len(mounts))
	}
	if volumes[0].Name != WorkloadVolumeName || volumes[1].Name != ConfigVolumeName {
		t.Errorf("unexpected system volume names: %+v", volumes)
	}
}

func TestBuildVolumesConfigMapNameByModule(t *testing.T) {
	volumes, _ := BuildVolumes(ModuleIDEdgeAgent, CreateOptions{})
	if volumes[1].ConfigMap.Name != AgentConfigMapName {
		t.Errorf("expected agent config map for edgeAgent, got %s", volumes[1].ConfigMap.Name)
	}

	volumes, _ = BuildVolumes("custom", CreateOptions{})
	if volumes[1].ConfigMap.Name != ModuleConfigMapName {
		t.Errorf("expected shared config map for custom module, got %s", volumes[1].ConfigMap.Name)
	}
}

func TestBuildVolumesFromBinds(t *testing.T) {
	co := CreateOptions{HostConfig: HostConfig{Binds: []string{"/host/data:/container/data:ro"}}}
	volumes, mounts := BuildVolumes("m1", co)
	if len(volumes) != 3 || len(mounts) != 2 {
		t.Fatalf("expected bind volume/mount appended, got %d/%d", len(volumes), len(mounts))
	}
	bindVol := volumes[2]
	if bindVol.HostPath.Path != "/host/data" {
		t.Errorf("unexpected bind volume path: %s", bindVol.HostPath.Path)
	}
	bindMount := mounts[1]
	if bindMount.MountPath != "/container/data" || !bindMount.ReadOnly {
		t.Errorf("unexpected bind mount: %+v", bindMount)
	}
}

func TestBuildVolumesInvalidBindDropped(t *testing.T) {
	co := CreateOptions{HostConfig: HostConfig{Binds: []string{"no-colon-here"}}}
	volumes, mounts := BuildVolumes("m1", co)
	if len(volumes) != 2 || len(mounts) != 1 {
		t.Errorf("expected invalid bind to be dropped, got %d/%d", len(volumes), len(mounts))
	}
}

func TestBuildVolumesFromMounts(t *testing.T) {
	co := CreateOptions{HostConfig: HostConfig{
		Mounts: []Mount{{Type: "bind", Name: "data", Source: "/host/data", Target: "/data", ReadOnly: true}},
	}}
	volumes, mounts := BuildVolumes("m1", co)
	if len(volumes) != 3 || volumes[2].Name != "data" {
		t.Fatalf("expected mount volume appended, got %+v", volumes)
	}
	if mounts[1].MountPath != "/data" || !mounts[1].ReadOnly {
		t.Errorf("unexpected mount: %+v", mounts[1])
	}
}

func TestBuildVolumesUnsupportedMountTypeIgnored(t *testing.T) {
	co := CreateOptions{HostConfig: HostConfig{
		Mounts: []Mount{{Type: "volume", Name: "v1", Source: "/host/v1", Target: "/v1"}},
	}}
	volumes, mounts := BuildVolumes("m1", co)
	if len(volumes) != 2 || len(mounts) != 1 {
		t.Errorf("expected unsupported mount type to be ignored, got %d/%d", len(volumes), len(mounts))
	}
}

func TestBuildProxyMounts(t *testing.T) {
	mounts := BuildProxyMounts()
	if len(mounts) != 2 {
		t.Fatalf("expected 2 proxy mounts, got %d", len(mounts))
	}
	if mounts[0].Name != WorkloadVolumeName || mounts[1].Name != ConfigVolumeName {
		t.Errorf("unexpected proxy mounts: %+v", mounts)
	}
}
