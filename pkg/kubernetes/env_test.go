package kubernetes

import "testing"

func TestBuildEnvIncludesFixedAndSemanticVars(t *testing.T) {
	identity := ModuleIdentity{
		HubHostname: "hub1.azure-devices.net",
		DeviceID:    "dev1",
		ModuleID:    "m1",
		Credential:  Credential{Generation: "gen1"},
	}
	spec := ModuleSpec{Env: map[string]string{"FOO": "bar"}}

	env := BuildEnv(identity, spec, "2")
	got := map[string]string{}
	for _, e := range env {
		got[e.Name] = e.Value
	}

	want := map[string]string{
		"FOO":          "bar",
		envHubHostname: "hub1.azure-devices.net",
		envAuthScheme:  EnvAuthScheme,
		envLogLevel:    "2",
		envWorkloadURI: WorkloadURI,
		envGatewayHost: EnvGatewayHost,
		envModuleGenID: "gen1",
		envDeviceID:    "dev1",
		envModuleID:    "m1",
		envAPIVersion:  WorkloadAPIVersion,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("env[%s] = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got[envMode]; ok {
		t.Error("did not expect IOTEDGE_MODE for non-well-known module")
	}
}

func TestBuildEnvWellKnownModuleExtras(t *testing.T) {
	identity := ModuleIdentity{ModuleID: ModuleIDEdgeAgent, DeviceID: "dev1"}
	env := BuildEnv(identity, ModuleSpec{}, "2")
	got := map[string]string{}
	for _, e := range env {
		got[e.Name] = e.Value
	}
	if got[envMode] != EnvMode {
		t.Errorf("expected IOTEDGE_MODE for edgeAgent, got %q", got[envMode])
	}
	if got[envManagementURI] != ManagementURI {
		t.Errorf("expected management URI for edgeAgent")
	}
	if got[envEdgeDeviceHost] != "dev1" {
		t.Errorf("expected EdgeDeviceHostName for well-known module")
	}
}

func TestBuildEnvEdgeHubNoManagementURI(t *testing.T) {
	identity := ModuleIdentity{ModuleID: ModuleIDEdgeHub, DeviceID: "dev1"}
	env := BuildEnv(identity, ModuleSpec{}, "2")
	for _, e := range env {
		if e.Name == envManagementURI {
			t.Error("did not expect management URI for edgeHub")
		}
	}
}

func TestBuildEnvFirstWinsOnDuplicateNames(t *testing.T) {
	spec := ModuleSpec{
		Env: map[string]string{"SHARED": "from-semantic"},
		CreateOptions: CreateOptions{
			Env: []string{"SHARED=from-create-options"},
		},
	}
	env := BuildEnv(ModuleIdentity{}, spec, "2")
	for _, e := range env {
		if e.Name == "SHARED" && e.Value != "from-semantic" {
			t.Errorf("expected semantic env to win, got %q", e.Value)
		}
	}
}

func TestBuildEnvCreateOptionsFirstEqualsOnlySplit(t *testing.T) {
	spec := ModuleSpec{CreateOptions: CreateOptions{Env: []string{"A=b=c"}}}
	env := BuildEnv(ModuleIdentity{}, spec, "2")
	found := false
	for _, e := range env {
		if e.Name == "A" {
			found = true
			if e.Value != "b=c" {
				t.Errorf("expected value %q, got %q", "b=c", e.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected A to be present")
	}
}

// The semantic env map must be assembled in sorted key order so repeated
// calls with the same input agree byte-for-byte, regardless of Go's
// randomized map iteration order.
func TestBuildEnvStableOrderForSemanticMap(t *testing.T) {
	spec := ModuleSpec{Env: map[string]string{"ZEBRA": "1", "ALPHA": "2", "MIKE": "3", "BRAVO": "4"}}
	want := []string{"ALPHA", "BRAVO", "MIKE", "ZEBRA"}

	for i := 0; i < 5; i++ {
		env := BuildEnv(ModuleIdentity{}, spec, "2")
		var gotOrder []string
		for _, e := range env {
			for _, w := range want {
				if e.Name == w {
					gotOrder = append(gotOrder, e.Name)
				}
			}
		}
		if len(gotOrder) != len(want) {
			t.Fatalf("call %d: expected %d semantic entries, got %d", i, len(want), len(gotOrder))
		}
		for j, name := range want {
			if gotOrder[j] != name {
				t.Fatalf("call %d: expected sorted order %v, got %v", i, want, gotOrder)
			}
		}
	}
}

func TestBuildEnvOneSidedEntryDropped(t *testing.T) {
	spec := ModuleSpec{CreateOptions: CreateOptions{Env: []string{"NOVALUE"}}}
	env := BuildEnv(ModuleIdentity{}, spec, "2")
	for _, e := range env {
		if e.Name == "NOVALUE" {
			t.Error("expected one-sided entry to be dropped")
		}
	}
}
