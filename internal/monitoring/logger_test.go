package monitoring

import (
	"fmt"
	"testing"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)

	Logf("ingested t=%d", 4)
	if len(*lines) != 1 || (*lines)[0] != "ingested t=4" {
		t.Fatalf("custom logger got %v", *lines)
	}

	SetLogger(nil)
	Logf("dropped")
	if len(*lines) != 1 {
		t.Errorf("no-op logger should not reach the previous logger, got %v", *lines)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestDebugf(t *testing.T) {
	lines := captureLogs(t)
	original := DebugLevel()
	t.Cleanup(func() { SetDebugLevel(original) })

	SetDebugLevel(0)
	Debugf(1, "hidden")
	if len(*lines) != 0 {
		t.Fatalf("level 0 should suppress debug output, got %v", *lines)
	}

	SetDebugLevel(2)
	Debugf(1, "one")
	Debugf(2, "two")
	Debugf(3, "three")
	Debugf(0, "zero")
	if got := *lines; len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("Debugf at level 2 logged %v, want [one two]", got)
	}

	SetDebugLevel(-5)
	if DebugLevel() != 0 {
		t.Errorf("negative level should clamp to 0, got %d", DebugLevel())
	}
}
