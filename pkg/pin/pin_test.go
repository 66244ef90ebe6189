package pin

import (
	"os"
	"testing"
)

func TestPinRejectsNegativeCPU(t *testing.T) {
	if _, err := Pin(-1); err == nil {
		t.Fatal("expected error for negative cpu index")
	}
}

func TestPinAndUnpin(t *testing.T) {
	cpus, err := Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(cpus) == 0 {
		t.Fatal("expected at least one CPU in the current affinity mask")
	}

	unpin, err := Pin(cpus[0])
	if err != nil {
		t.Fatalf("Pin(%d): %v", cpus[0], err)
	}
	defer unpin()

	after, err := Current()
	if err != nil {
		t.Fatalf("Current after Pin: %v", err)
	}
	if len(after) != 1 || after[0] != cpus[0] {
		t.Errorf("got affinity %v, want [%d]", after, cpus[0])
	}
}

func TestDisableTurboNoOpWithoutPstateFile(t *testing.T) {
	if _, err := os.Stat(noTurboPath); err == nil {
		t.Skip("host exposes intel_pstate/no_turbo; no-op path not exercised")
	}

	restore, err := DisableTurbo()
	if err != nil {
		t.Fatalf("DisableTurbo: %v", err)
	}
	restore()
}
