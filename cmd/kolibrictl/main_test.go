package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/mattjoyce/kolibrid/internal/state"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func TestRunStatusHumanOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(statusResponse{
			Context: state.Snapshot{
				StartResult: state.StartResultSuccess,
				BaseURL:     "http://127.0.0.1:8080/",
				AppKey:      "deadbeef",
				HomePath:    "/var/lib/kolibri",
			},
			Revision:  12,
			UptimeSec: 90,
		})
	}))
	defer ts.Close()

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runStatus([]string{"--api-url", ts.URL})
	})

	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	for _, want := range []string{"serving", "http://127.0.0.1:8080/", "deadbeef", "Revision:     12"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output, got:\n%s", want, stdout)
		}
	}
}

func TestRunStatusJSONOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{Revision: 3})
	}))
	defer ts.Close()

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runStatus([]string{"--api-url", ts.URL, "--json"})
	})

	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	var parsed statusResponse
	if err := json.Unmarshal([]byte(stdout), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout)
	}
	if parsed.Revision != 3 {
		t.Errorf("expected revision 3, got %d", parsed.Revision)
	}
}

func TestRunCommandSendsBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCommand("start", []string{"--api-url", ts.URL, "--api-key", "secret"})
	})

	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if gotPath != "/v1/start" {
		t.Errorf("expected POST /v1/start, got %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if !strings.Contains(stdout, "Command accepted") {
		t.Errorf("expected acceptance message, got: %s", stdout)
	}
}

func TestRunCommandWorkerGone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCommand("shutdown", []string{"--api-url", ts.URL})
	})

	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "not running") {
		t.Errorf("expected worker-gone message, got: %s", stderr)
	}
}
