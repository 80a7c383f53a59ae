package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestVerboseToggle(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose off by default")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose on after SetVerbose(true)")
	}
}

func TestDebug_OnlyWhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("ingesting %s", "handbook.pdf")
	if buf.Len() > 0 {
		t.Errorf("expected no debug output when quiet, got %q", buf.String())
	}

	SetVerbose(true)
	Debug("ingesting %s", "handbook.pdf")
	if got := buf.String(); got != "[DEBUG] ingesting handbook.pdf\n" {
		t.Errorf("unexpected debug output: %q", got)
	}
}

func TestSection_OnlyWhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Section("Retrieval")
	if buf.Len() > 0 {
		t.Error("expected no section header when quiet")
	}

	SetVerbose(true)
	Section("Retrieval")
	if got := buf.String(); got != "\n=== Retrieval ===\n" {
		t.Errorf("unexpected section output: %q", got)
	}
}

func TestInfoWarnError_AlwaysPrint(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("indexed %d chunks", 12)
	Warn("skipping %s", "broken.pdf")
	Error("qdrant unreachable")

	want := "[INFO] indexed 12 chunks\n[WARN] skipping broken.pdf\n[ERROR] qdrant unreachable\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestConcurrentUse(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			SetVerbose(true)
			Debug("worker %d", n)
			IsVerbose()
			SetVerbose(false)
		}(i)
	}
	wg.Wait()
}
