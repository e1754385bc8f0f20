package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fingerid/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	result := CheckDatabase(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected database check to pass, got: %s", result.Detail)
	}
}

func TestCheckSubprocessesMissingScript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Oracle.Script = filepath.Join(t.TempDir(), "missing.py")
	results := CheckSubprocesses(cfg)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Passed {
		t.Fatal("expected missing oracle script to fail")
	}
	if !results[1].Passed {
		t.Fatalf("expected optional binarize to pass, got %+v", results[1])
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg)
	if Failed(results) {
		t.Fatalf("expected every check to pass: %+v", results)
	}
}

func TestCheckRedisUnreachable(t *testing.T) {
	result := CheckRedis(context.Background(), "127.0.0.1:1", "", 0)
	if result.Passed {
		t.Fatal("expected unreachable redis to fail")
	}
}
