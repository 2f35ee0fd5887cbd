package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyblocks/flightdeck/internal/dispatcher"
	"github.com/skyblocks/flightdeck/internal/handlers"
	"github.com/skyblocks/flightdeck/internal/logging"
	"github.com/skyblocks/flightdeck/internal/mission"
	"github.com/skyblocks/flightdeck/internal/sim"
	"github.com/skyblocks/flightdeck/internal/worker"
	"github.com/skyblocks/flightdeck/pkg/core"
)

const hop = `{"name":"hop","program":[{"kind":"takeoff","next":{"kind":"move","fields":{"DIRECTION":"left","DISTANCE":"1.0","SPEED":"medium"},"next":{"kind":"land"}}}]}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	runner := sim.NewRunner(sim.New(10), func() sim.Clock { return sim.NewStepClock(30) }, nil)
	svc := handlers.NewService(handlers.Dependencies{Runner: runner}, mission.NewContext())

	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	worker.NewManager(worker.Dependencies{Service: svc}).RegisterHandlers(d)

	ts := httptest.NewServer(New("", d, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, contentType, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthcheck(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCompile(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/compile", "application/json", hop)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hop", out["programName"])
	assert.EqualValues(t, 3, out["instructionCount"])
}

func TestCompile_NameFromQuery(t *testing.T) {
	ts := newTestServer(t)
	_, out := post(t, ts.URL+"/compile?name=other", "application/json", hop)
	assert.Equal(t, "other", out["programName"])
}

func TestCompile_StructuralErrorIs400(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/compile", "application/json",
		`[{"kind":"takeoff","next":{"kind":"loop_forever","next":{"kind":"land"}}}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UnknownBlock", out["error"])
	assert.NotEmpty(t, out["path"])
}

func TestCompile_InvalidWorkspace(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/compile", "application/json", `{"program":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidWorkspace", out["error"])
}

func TestCompile_YAMLContentType(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/compile", "application/yaml",
		"- kind: takeoff\n  next:\n    kind: land\n")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, out["instructionCount"])
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/generate", "application/json", hop)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out["code"], "current_yaw")
	disp := out["displacement"].(map[string]any)
	assert.InDelta(t, 1.0, disp["y"], 1e-9)
}

func TestSimulate(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/simulate", "application/json", hop)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(core.RunIdle), out["state"])
}

func TestSimulate_NothingToRun(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/simulate", "application/json", `[{"kind":"takeoff","next":{"kind":"land"}}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "EmptySequence", out["error"])
}

func TestSend_NoBackend(t *testing.T) {
	ts := newTestServer(t)
	resp, out := post(t, ts.URL+"/send", "application/json", hop)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, "NoFlightBackend", out["error"])
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st handlers.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, core.RunIdle, st.Snapshot.State)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/compile")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type stubDispatcher struct {
	result any
	err    error
}

func (s stubDispatcher) Dispatch(context.Context, dispatcher.Event) (any, error) {
	return s.result, s.err
}

func TestQueuedIs202(t *testing.T) {
	ts := httptest.NewServer(New("", stubDispatcher{result: dispatcher.Queued}, nil).Handler())
	defer ts.Close()

	resp, out := post(t, ts.URL+"/simulate", "application/json", hop)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", out["status"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{sim.ErrRunActive, http.StatusConflict},
		{dispatcher.ErrQueueFull, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := errorResponse(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
