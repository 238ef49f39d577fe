// Package servertrust verifies that the process listening on the local
// model server's port is the expected binary, not an impersonator, and
// that the model it reports matches what the operator expects. Protects
// against server-swap attacks, per spec.md §4.6.
//
// Grounded on original_source/core/server_trust.py, adapted from its
// Windows-specific netstat/tasklist parsing to the Unix-oriented lsof/ps
// binaries resolved by pathregistry (this module targets the platforms the
// rest of the corpus builds for).
package servertrust

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExpectedProcessNames lists the binary names considered legitimate model
// servers.
var ExpectedProcessNames = map[string]bool{
	"llama-server": true,
	"llama-cli":    true,
	"ollama":       true,
}

// BinaryResolver supplies absolute paths for optional OS utilities,
// satisfied by *pathregistry.Registry.
type BinaryResolver interface {
	GetOptional(name string) (string, bool)
}

// PortCheck is the result of a pre-bind port availability check.
type PortCheck struct {
	OK      bool
	Error   string
	Warning string
	PID     int
}

// ProcessCheck is the result of a post-connect process-identity check.
type ProcessCheck struct {
	OK          bool
	Error       string
	Warning     string
	ProcessName string
	PID         int
}

// ModelCheck is the result of a model-identity check via /props.
type ModelCheck struct {
	OK        bool
	Warnings  []string
	ModelName string
	CtxSize   int
}

// Verifier checks the process and model behind a local server endpoint.
type Verifier struct {
	Host          string
	Port          int
	Resolver      BinaryResolver
	ExpectedModel string
	HTTPClient    *http.Client
}

// New returns a Verifier for host:port. resolver may be nil, in which case
// process-identity checks degrade to warn-only.
func New(host string, port int, resolver BinaryResolver, expectedModel string) *Verifier {
	return &Verifier{
		Host:          host,
		Port:          port,
		Resolver:      resolver,
		ExpectedModel: expectedModel,
		HTTPClient:    &http.Client{Timeout: 5 * time.Second},
	}
}

// CheckPortAvailable verifies the target port is not already bound, used
// before the agent launches its own model server. A pre-bound port may
// indicate a rogue process waiting to impersonate the server.
func (v *Verifier) CheckPortAvailable() PortCheck {
	lsofPath := v.getBinary("lsof")
	if lsofPath == "" {
		return PortCheck{OK: true, Warning: "lsof not available — skipping port pre-check"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, lsofPath, "-nP", "-iTCP:"+strconv.Itoa(v.Port), "-sTCP:LISTEN").Output()
	if err != nil {
		// exit status 1 from lsof means "nothing found", which is the
		// expected (healthy) outcome, not a failure to check.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return PortCheck{OK: true}
		}
		return PortCheck{OK: true, Warning: fmt.Sprintf("port pre-check failed: %v", err)}
	}

	pid := findListeningPIDFromLsof(string(out))
	if pid != 0 {
		return PortCheck{
			OK:    false,
			Error: fmt.Sprintf("port %d already bound by PID %d. Possible rogue server. Refusing to start.", v.Port, pid),
			PID:   pid,
		}
	}
	return PortCheck{OK: true}
}

// VerifyProcess confirms the process listening on the port is one of
// ExpectedProcessNames, run after connecting but before sending the system
// prompt (TOCTOU mitigation per spec.md §4.6).
func (v *Verifier) VerifyProcess() ProcessCheck {
	lsofPath := v.getBinary("lsof")
	psPath := v.getBinary("ps")
	if lsofPath == "" || psPath == "" {
		return ProcessCheck{OK: true, Warning: "cannot verify server process — lsof/ps not available"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, lsofPath, "-nP", "-iTCP:"+strconv.Itoa(v.Port), "-sTCP:LISTEN").Output()
	if err != nil {
		return ProcessCheck{OK: true, Warning: fmt.Sprintf("lsof failed: %v", err)}
	}

	pid := findListeningPIDFromLsof(string(out))
	if pid == 0 {
		return ProcessCheck{OK: false, Error: fmt.Sprintf("no process found listening on port %d", v.Port)}
	}

	name := v.processName(psPath, pid)
	if name == "" {
		return ProcessCheck{OK: false, Error: fmt.Sprintf("cannot identify process for PID %d", pid)}
	}

	if !ExpectedProcessNames[strings.ToLower(name)] {
		expected := make([]string, 0, len(ExpectedProcessNames))
		for n := range ExpectedProcessNames {
			expected = append(expected, n)
		}
		return ProcessCheck{
			OK:          false,
			Error:       fmt.Sprintf("unexpected process on port %d: %q (PID %d). Expected one of: %s", v.Port, name, pid, strings.Join(expected, ", ")),
			ProcessName: name,
			PID:         pid,
		}
	}

	return ProcessCheck{OK: true, ProcessName: name, PID: pid}
}

// propsResponse is the subset of a /props response servertrust inspects.
type propsResponse struct {
	ModelPath                 string `json:"model_path"`
	DefaultGenerationSettings struct {
		Model string `json:"model"`
		NCtx  int    `json:"n_ctx"`
	} `json:"default_generation_settings"`
}

// VerifyModelIdentity queries the server's /props endpoint and checks the
// reported model path against ExpectedModel (substring match, case
// insensitive).
func (v *Verifier) VerifyModelIdentity(baseURL string) ModelCheck {
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", v.Host, v.Port)
	}
	result := ModelCheck{OK: true}

	resp, err := v.HTTPClient.Get(baseURL + "/props")
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("cannot query /props: %v", err))
		return result
	}
	defer resp.Body.Close()

	var props propsResponse
	if err := json.NewDecoder(resp.Body).Decode(&props); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("cannot query /props: %v", err))
		return result
	}

	modelName := props.ModelPath
	if modelName == "" {
		modelName = props.DefaultGenerationSettings.Model
	}
	if modelName == "" {
		modelName = "unknown"
	}
	result.ModelName = modelName
	result.CtxSize = props.DefaultGenerationSettings.NCtx

	if v.ExpectedModel != "" && !strings.Contains(strings.ToLower(modelName), strings.ToLower(v.ExpectedModel)) {
		result.OK = false
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("model name mismatch: expected %q in %q", v.ExpectedModel, modelName))
	}

	return result
}

func (v *Verifier) getBinary(name string) string {
	if v.Resolver == nil {
		return ""
	}
	path, ok := v.Resolver.GetOptional(name)
	if !ok {
		return ""
	}
	return path
}

var lsofListenRe = regexp.MustCompile(`\s(\d+)\s+\S+\s+\d+u\s+IPv[46]`)

// findListeningPIDFromLsof parses `lsof -nP -iTCP:<port> -sTCP:LISTEN`
// output for the listening process's PID (the second field of each
// data row).
func findListeningPIDFromLsof(output string) int {
	scanner := bufio.NewScanner(strings.NewReader(output))
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			continue // header row: COMMAND PID USER FD TYPE ...
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if pid, err := strconv.Atoi(fields[1]); err == nil {
			return pid
		}
	}
	return 0
}

// processName resolves a PID to its command name via `ps -p <pid> -o comm=`.
func (v *Verifier) processName(psPath string, pid int) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, psPath, "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(string(out))
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	return name
}
