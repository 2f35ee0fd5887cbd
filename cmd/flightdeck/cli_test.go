package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hopJSON = `{"name":"hop","program":[{"kind":"takeoff","next":{"kind":"move","fields":{"DIRECTION":"forward","DISTANCE":"1.0","SPEED":"fast"},"next":{"kind":"land"}}}]}`

const hopYAML = `name: hop
program:
  - kind: takeoff
    next:
      kind: rotate
      fields: {DIRECTION: cw, ANGLE: "90"}
      next:
        kind: land
`

type result struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs the binary with logs and exports kept in a temp dir.
func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	full := append([]string{args[0],
		"--config", dir,
		"--logs-dir", filepath.Join(dir, "logs"),
		"--output-dir", filepath.Join(dir, "runs"),
	}, args[1:]...)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_NoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "Usage: flightdeck")
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"version"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), CurrentVersion)
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"fly"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), `unknown command "fly"`)
}

func TestRun_BadFlag(t *testing.T) {
	res := runCLI(t, "", "compile", "--no-such-flag")
	assert.Equal(t, exitUsage, res.code)
}

func TestCompile_Stdin(t *testing.T) {
	res := runCLI(t, hopJSON, "compile")
	require.Equal(t, exitOK, res.code, res.stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "hop", out["programName"])
	assert.EqualValues(t, 3, out["instructionCount"])
	assert.Len(t, out["fingerprint"], 16)
}

func TestCompile_YAMLFileWithName(t *testing.T) {
	path := writeFile(t, "hop.yaml", hopYAML)
	res := runCLI(t, "", "compile", "--name", "turn", path)
	require.Equal(t, exitOK, res.code, res.stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "turn", out["programName"])
}

func TestCompile_StructuralError(t *testing.T) {
	res := runCLI(t, `[{"kind":"move","fields":{"DIRECTION":"left","DISTANCE":"1.0","SPEED":"slow"}}]`, "compile")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "MissingLaunch")
	assert.Empty(t, res.stdout)
}

func TestCompile_EmptySequenceWarns(t *testing.T) {
	res := runCLI(t, `[{"kind":"takeoff","next":{"kind":"land"}}]`, "compile")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stderr, "warning: EmptySequence")
}

func TestCompile_TooManyArgs(t *testing.T) {
	res := runCLI(t, "", "compile", "a.json", "b.json")
	assert.Equal(t, exitUsage, res.code)
}

func TestGenerate_Stdout(t *testing.T) {
	res := runCLI(t, hopJSON, "generate", "--uri", "radio://0/90/2M/E7E7E7E7E8")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "import cflib.crtp")
	assert.Contains(t, res.stdout, "radio://0/90/2M/E7E7E7E7E8")
	assert.NotContains(t, res.stdout, "{{GENERATED_BODY}}")
}

func TestGenerate_OutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "flight.py")
	res := runCLI(t, hopJSON, "generate", "-o", out)
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "wrote "+out)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "commander")
}

func TestGenerate_JSON(t *testing.T) {
	res := runCLI(t, hopJSON, "generate", "--json")
	require.Equal(t, exitOK, res.code, res.stderr)

	var out struct {
		Code         string             `json:"code"`
		Displacement map[string]float64 `json:"displacement"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.NotEmpty(t, out.Code)
	assert.InDelta(t, 1.0, out.Displacement["x"], 1e-9)
}

func TestSimulate_Fast(t *testing.T) {
	res := runCLI(t, hopJSON, "simulate", "--fast")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stderr, "run exported to ")

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "idle", out["state"])
	assert.EqualValues(t, 3, out["instructionsFlown"])
	// up 1, forward 1, down 1
	assert.InDelta(t, 3.0, out["distanceFlown"], 1e-6)
	assert.Equal(t, false, out["leftFlightArea"])
}

func TestSimulate_NothingToRun(t *testing.T) {
	res := runCLI(t, `[{"kind":"takeoff","next":{"kind":"land"}}]`, "simulate", "--fast")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "nothing to run")
}

func TestSimulate_UnknownStorage(t *testing.T) {
	res := runCLI(t, hopJSON, "simulate", "--fast", "--storage", "tape")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, `unknown storage type "tape"`)
}

func TestSend_BackendDown(t *testing.T) {
	res := runCLI(t, hopJSON, "send", "--server-url", "http://127.0.0.1:1")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "error:")
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000", httpToWS("http://localhost:5000/"))
	assert.Equal(t, "wss://example.com", httpToWS("https://example.com"))
}
