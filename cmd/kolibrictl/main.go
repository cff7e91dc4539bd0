package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/kolibrid/internal/state"
	"github.com/mattjoyce/kolibrid/internal/tui/watch"
)

const version = "0.1.0"

const defaultAPIURL = "http://127.0.0.1:5678"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "status":
		os.Exit(runStatus(args))
	case "start":
		os.Exit(runCommand("start", args))
	case "stop":
		os.Exit(runCommand("stop", args))
	case "shutdown":
		os.Exit(runCommand("shutdown", args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("kolibrictl version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`kolibrictl - Control client for the kolibrid daemon

Usage:
  kolibrictl <command> [flags]

Commands:
  status      Show service state (--json for machine output)
  start       Ask the worker to start serving
  stop        Ask the worker to stop serving (worker stays alive)
  shutdown    Ask the worker process to exit
  watch       Real-time service watch TUI
  version     Show version information
  help        Show this help message

Flags:
  --api-url URL    Daemon API URL (default: ` + defaultAPIURL + `)
  --api-key KEY    API Bearer Token (or KOLIBRID_API_KEY env var)
`)
}

func apiFlags(fs *flag.FlagSet) (*string, *string) {
	apiURL := fs.String("api-url", defaultAPIURL, "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("KOLIBRID_API_KEY"), "API Bearer Token")
	return apiURL, apiKey
}

func apiRequest(method, url, apiKey string) (*http.Response, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

// statusResponse mirrors the daemon's /v1/status payload.
type statusResponse struct {
	Context      state.Snapshot `json:"context"`
	Revision     int64          `json:"revision"`
	WorkerExited bool           `json:"worker_exited"`
	UptimeSec    int64          `json:"uptime_seconds"`
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	apiURL, apiKey := apiFlags(fs)
	jsonOut := fs.Bool("json", false, "Output status as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	resp, err := apiRequest(http.MethodGet, *apiURL+"/v1/status", *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reach daemon at %s: %v\n", *apiURL, err)
		return 1
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		return 1
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Daemon returned %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		return 1
	}

	if *jsonOut {
		fmt.Println(string(body))
		return 0
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse response: %v\n", err)
		return 1
	}
	printStatus(status)
	return 0
}

func printStatus(status statusResponse) {
	snap := status.Context

	phase := "idle"
	switch {
	case status.WorkerExited:
		phase = "worker exited"
	case snap.IsStarting:
		phase = "starting"
	case snap.IsStopped && snap.StartResult == state.StartResultError:
		phase = "failed"
	case snap.IsStopped:
		phase = "stopped"
	case snap.BaseURL != "":
		phase = "serving"
	}

	fmt.Printf("State:        %s\n", phase)
	fmt.Printf("Start result: %s\n", string(snap.StartResult))
	if snap.BaseURL != "" {
		fmt.Printf("URL:          %s\n", snap.BaseURL)
	}
	if snap.ExtraURL != "" {
		fmt.Printf("Content URL:  %s\n", snap.ExtraURL)
	}
	if snap.AppKey != "" {
		fmt.Printf("App key:      %s\n", snap.AppKey)
	}
	if snap.HomePath != "" {
		fmt.Printf("Home:         %s\n", snap.HomePath)
	}
	fmt.Printf("Revision:     %d\n", status.Revision)
	fmt.Printf("Daemon up:    %s\n", (time.Duration(status.UptimeSec) * time.Second).String())
}

func runCommand(name string, args []string) int {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	apiURL, apiKey := apiFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	resp, err := apiRequest(http.MethodPost, *apiURL+"/v1/"+name, *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reach daemon at %s: %v\n", *apiURL, err)
		return 1
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Printf("Command accepted: %s\n", name)
		return 0
	case http.StatusConflict:
		fmt.Fprintln(os.Stderr, "Worker is not running")
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Daemon returned %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		return 1
	}
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL, apiKey := apiFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
