package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	buildDir := t.TempDir()
	binaryPath := filepath.Join(buildDir, "paperscope")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/paperscope")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "paperscope")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read built binary: %v", err)
	}
	if err := os.WriteFile(copiedBinary, data, 0o755); err != nil {
		t.Fatalf("write copied binary: %v", err)
	}

	version := exec.Command(copiedBinary, "version")
	version.Dir = outside
	if out, err := version.CombinedOutput(); err != nil {
		t.Fatalf("version failed: %v\n%s", err, string(out))
	}

	help := exec.Command(copiedBinary, "--help")
	help.Dir = outside
	out, err := help.CombinedOutput()
	if err != nil {
		t.Fatalf("--help failed: %v\n%s", err, string(out))
	}
	if !strings.Contains(string(out), "rate-limit") {
		t.Fatalf("--help does not list rate-limit command:\n%s", string(out))
	}

	// Prompt listing needs no API key, store, or config file.
	prompts := exec.Command(copiedBinary, "prompts", "list", "--output-format", "json")
	prompts.Dir = outside
	prompts.Env = append(os.Environ(), "XDG_CONFIG_HOME="+outside, "XDG_DATA_HOME="+outside)
	if out, err := prompts.CombinedOutput(); err != nil {
		t.Fatalf("prompts list failed: %v\n%s", err, string(out))
	} else if !strings.Contains(string(out), "quick-relevance") {
		t.Fatalf("prompts list missing quick-relevance:\n%s", string(out))
	}
}
