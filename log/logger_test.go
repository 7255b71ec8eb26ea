package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSetModuleLevelOverridesDefault(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stdout)
	SetLevel(Warning)
	SetModuleLevel("bvh-test", Debug)

	bvhLog := New("bvh-test")
	otherLog := New("other-test")

	bvhLog.Debugf("duplicate budget: %d faces", 42)
	otherLog.Debugf("this should be filtered out")

	out := buf.String()
	if !strings.Contains(out, "duplicate budget: 42 faces") {
		t.Fatalf("expected module-level override to let bvh-test debug messages through, got %q", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Fatalf("expected default Warning floor to suppress other-test debug messages, got %q", out)
	}
}
