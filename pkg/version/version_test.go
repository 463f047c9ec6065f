package version

import "testing"

func TestVersionDefault(t *testing.T) {
	if Version == "" {
		t.Error("expected a non-empty default version")
	}
}
