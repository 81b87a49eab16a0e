package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wardd-org/wardd/internal/events"
)

func TestRunSuccess(t *testing.T) {
	res := Run(context.Background(), "echo hello", Config{})
	if !res.Success() {
		t.Fatalf("not successful: %+v", res)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if res.OutputPreview != "hello" {
		t.Fatalf("preview = %q", res.OutputPreview)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	res := Run(context.Background(), "exit 3", Config{})
	if res.Success() {
		t.Fatal("reported success")
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit = %d, want 3", res.ExitCode)
	}
	if res.Err != nil {
		t.Fatalf("non-zero exit must not set Err: %v", res.Err)
	}
}

func TestRunCapturesStderr(t *testing.T) {
	res := Run(context.Background(), "echo out; echo err 1>&2", Config{})
	if !strings.Contains(res.Stderr, "err") {
		t.Fatalf("stderr = %q", res.Stderr)
	}
	if !strings.Contains(res.OutputPreview, "out") || !strings.Contains(res.OutputPreview, "err") {
		t.Fatalf("preview = %q", res.OutputPreview)
	}
}

func TestRunDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := Run(ctx, "sleep 5", Config{})
	if !res.TimedOut {
		t.Fatalf("want timeout: %+v", res)
	}
	if res.Aborted {
		t.Fatal("timeout misreported as abort")
	}
}

func TestRunAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := Run(ctx, "sleep 5", Config{})
	if !res.Aborted {
		t.Fatalf("want abort: %+v", res)
	}
	if res.TimedOut {
		t.Fatal("abort misreported as timeout")
	}
}

func TestRunPreviewTruncation(t *testing.T) {
	res := Run(context.Background(), "yes x | head -c 10000", Config{MaxOutputBytes: 64})
	if len(res.OutputPreview) > 64+len("\n... (output truncated)") {
		t.Fatalf("preview not capped: %d bytes", len(res.OutputPreview))
	}
	if !strings.HasSuffix(res.OutputPreview, "(output truncated)") {
		t.Fatalf("missing truncation marker: %q", res.OutputPreview[len(res.OutputPreview)-40:])
	}
}

func TestRunRedactsSecrets(t *testing.T) {
	redact := events.NewLineRedactor([]string{"hunter2"})
	res := Run(context.Background(), "echo token=hunter2; echo hunter2 1>&2", Config{Redact: redact})
	if !res.Success() {
		t.Fatalf("not successful: %+v", res)
	}
	for name, out := range map[string]string{
		"stdout":  res.Stdout,
		"stderr":  res.Stderr,
		"preview": res.OutputPreview,
	} {
		if strings.Contains(out, "hunter2") {
			t.Fatalf("%s leaked secret: %q", name, out)
		}
		if !strings.Contains(out, events.SecretToken()) {
			t.Fatalf("%s missing marker: %q", name, out)
		}
	}
}

func TestRunWorkDir(t *testing.T) {
	dir := t.TempDir()
	res := Run(context.Background(), "pwd", Config{WorkDir: dir})
	if !res.Success() {
		t.Fatalf("pwd failed: %+v", res)
	}
	if !strings.Contains(res.Stdout, dir) {
		t.Fatalf("stdout = %q, want contains %q", res.Stdout, dir)
	}
}
