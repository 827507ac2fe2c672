package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func buildBinary(t *testing.T) string {
	t.Helper()
	binaryPath := filepath.Join(t.TempDir(), "voxelscore-test")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}
	return binaryPath
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// TestScoreCommand runs the built binary against the fixture matches
func TestScoreCommand(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	binaryPath := buildBinary(t)
	configPath, dir := writeFixture(t)

	tests := []struct {
		name           string
		args           []string
		expectInOutput []string
		expectFailure  bool
	}{
		{
			name: "score with config",
			args: []string{"score", "--no-publish", "--config=" + configPath},
			expectInOutput: []string{
				"Scoring Results",
				"team7/m3: PASS",
				"team9/m3: FAIL",
			},
		},
		{
			name:           "missing config file",
			args:           []string{"score", "--config=nonexistent.yaml"},
			expectInOutput: []string{"config file not found"},
			expectFailure:  true,
		},
		{
			name:           "invalid log level",
			args:           []string{"score", "--log=loud", "--config=" + configPath},
			expectInOutput: []string{"invalid log level"},
			expectFailure:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			output, err := exec.CommandContext(ctx, binaryPath, tt.args...).CombinedOutput()
			outputStr := string(output)
			for _, expected := range tt.expectInOutput {
				if !strings.Contains(outputStr, expected) {
					t.Errorf("Expected output to contain '%s', but it didn't.\nFull output:\n%s", expected, outputStr)
				}
			}
			if tt.expectFailure && err == nil {
				t.Error("Expected command to fail, but it succeeded")
			}
			if !tt.expectFailure && err != nil {
				t.Errorf("Command failed: %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "out", "team7_m3.json")); err != nil {
		t.Errorf("Expected report to be written: %v", err)
	}
}

// TestServeSignalHandling starts the HTTP service and stops it with SIGINT
func TestServeSignalHandling(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	binaryPath := buildBinary(t)
	configPath, _ := writeFixture(t)
	port := freePort(t)

	var output bytes.Buffer
	cmd := exec.Command(binaryPath, "serve", "--no-publish", fmt.Sprintf("--port=%d", port), "--config="+configPath)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	deadline := time.Now().Add(10 * time.Second)
	healthy := false
	for time.Now().Before(deadline) {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			healthy = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !healthy {
		_ = cmd.Process.Kill()
		t.Fatalf("Service never became healthy.\nFull output:\n%s", output.String())
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("Failed to send SIGINT: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Service exited with error: %v\nFull output:\n%s", err, output.String())
		}
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("Service did not shut down within 10 seconds")
	}

	for _, expected := range []string{"HTTP endpoints", "Press Ctrl+C to stop", "Shutting down service"} {
		if !strings.Contains(output.String(), expected) {
			t.Errorf("Expected output to contain '%s'.\nFull output:\n%s", expected, output.String())
		}
	}
}
