package errs

import (
	"errors"
	"testing"
)

func TestNewAndKind(t *testing.T) {
	e := New(InvalidProfile, "no profile for %q", "zen5/ddr5")
	if e.Kind() != InvalidProfile {
		t.Errorf("got kind %v, want %v", e.Kind(), InvalidProfile)
	}
	if e.Error() != `no profile for "zen5/ddr5"` {
		t.Errorf("got message %q", e.Error())
	}
}

func TestWrapUnwraps(t *testing.T) {
	underlying := errors.New("pread failed")
	e := Wrap(NoPhysicalTranslation, underlying, "read pagemap entry")
	if !errors.Is(e, underlying) {
		t.Error("expected Wrap to preserve the underlying error for errors.Is")
	}
	if e.Kind() != NoPhysicalTranslation {
		t.Errorf("got kind %v, want %v", e.Kind(), NoPhysicalTranslation)
	}
}

func TestIs(t *testing.T) {
	e := New(MappingIncomplete, "expected 3, got 2")
	if !Is(e, MappingIncomplete) {
		t.Error("Is should match the error's own kind")
	}
	if Is(e, InvalidProfile) {
		t.Error("Is should not match an unrelated kind")
	}
	if Is(errors.New("plain error"), MappingIncomplete) {
		t.Error("Is should not match a non-*Error value")
	}
}
