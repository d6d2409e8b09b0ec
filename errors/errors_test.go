package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	cause := fmt.Errorf("heap exhausted")
	err := &Error{
		Phase:  PhaseFreeze,
		Kind:   KindBadFrame,
		Frame:  "interpreted",
		PC:     0x1040,
		Detail: "monitor count corrupted",
		Cause:  cause,
	}
	msg := err.Error()
	for _, want := range []string{
		"[freeze]",
		"bad_frame",
		"in interpreted frame",
		"at pc 0x1040",
		"monitor count corrupted",
		"caused by: heap exhausted",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestErrorMessageMinimal(t *testing.T) {
	err := &Error{Phase: PhaseThaw, Kind: KindDeopt}
	if got := err.Error(); got != "[thaw] deopt" {
		t.Errorf("message = %q", got)
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	err := StackOverflow(PhaseAllocate, "chunk of %d words", 1<<20)
	if !stderrors.Is(err, StackOverflow(PhaseAllocate, "")) {
		t.Error("same phase and kind should match")
	}
	if stderrors.Is(err, StackOverflow(PhaseThaw, "")) {
		t.Error("different phase should not match")
	}
	if stderrors.Is(err, Layout(PhaseAllocate, "")) {
		t.Error("different kind should not match")
	}
	if stderrors.Is(err, fmt.Errorf("stack overflow")) {
		t.Error("non-structured target should not match")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("mmap failed")
	err := AllocationFailed(512, cause)
	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if err.Detail != "failed to allocate chunk of 512 words" {
		t.Errorf("detail = %q", err.Detail)
	}
}

func TestBuilder(t *testing.T) {
	cause := fmt.Errorf("bad link")
	err := New(PhaseWalk, KindBadFrame).
		Frame("stub").
		PC(0xBEEF).
		Detail("frame %d of %d", 3, 7).
		Cause(cause).
		Build()

	if err.Phase != PhaseWalk || err.Kind != KindBadFrame {
		t.Errorf("phase/kind = %s/%s", err.Phase, err.Kind)
	}
	if err.Frame != "stub" || err.PC != 0xBEEF {
		t.Errorf("frame/pc = %s/%#x", err.Frame, err.PC)
	}
	if err.Detail != "frame 3 of 7" {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Cause != cause {
		t.Error("cause dropped")
	}
}

func TestDetailWithoutArgsKeepsPercent(t *testing.T) {
	err := New(PhaseVerify, KindLayout).Detail("sp at 100%% of capacity").Build()
	if err.Detail != "sp at 100%% of capacity" {
		t.Errorf("detail = %q", err.Detail)
	}
}

func TestCodeMissing(t *testing.T) {
	err := CodeMissing(PhaseWalk, 0x4000)
	if err.PC != 0x4000 || err.Kind != KindCodeMissing {
		t.Errorf("err = %+v", err)
	}
	if !strings.Contains(err.Error(), "no code metadata") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestOutOfBounds(t *testing.T) {
	err := OutOfBounds(PhaseWalk, 42, 16)
	if !strings.Contains(err.Error(), "index 42 out of bounds (length 16)") {
		t.Errorf("message = %q", err.Error())
	}
}
