package controld

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellolink/tellolink/internal/drone"
	"github.com/tellolink/tellolink/internal/emulator"
	"github.com/tellolink/tellolink/pkg/options"
)

func newTestServer(t *testing.T) (*Server, *emulator.Emulator) {
	t.Helper()

	emu, err := emulator.New("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(emu.Close)

	droneOpts := options.NewDroneOptions()
	droneOpts.Addr = "127.0.0.1"
	droneOpts.CommandPort = emu.Addr().Port
	droneOpts.LocalPort = 0
	droneOpts.ConnectAttempts = 1
	droneOpts.ModeSwitchTimeout = 300 * time.Millisecond
	droneOpts.BatteryTimeout = 300 * time.Millisecond
	droneOpts.TakeoffTimeout = 500 * time.Millisecond
	droneOpts.LandTimeout = 500 * time.Millisecond
	droneOpts.MoveTimeout = 300 * time.Millisecond
	droneOpts.DefaultTimeout = 300 * time.Millisecond

	cfg := NewConfig()
	cfg.Drone = droneOpts

	s, err := cfg.New()
	require.NoError(t, err)
	t.Cleanup(func() { s.ctrl.Disconnect() })

	return s, emu
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, drone.Outcome) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var out drone.Outcome
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestServerHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServerFlightFlow(t *testing.T) {
	s, _ := newTestServer(t)

	rec, out := doRequest(t, s, http.MethodPost, "/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, out.Success)

	rec, out = doRequest(t, s, http.MethodPost, "/takeoff", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, out.Success)

	rec, out = doRequest(t, s, http.MethodPost, "/move", `{"direction":"forward","distance":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Success)

	rec, out = doRequest(t, s, http.MethodPost, "/rotate", `{"direction":"ccw","degrees":45}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Success)

	rec, out = doRequest(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, drone.StatusFlying, out.FlightStatus)

	rec, out = doRequest(t, s, http.MethodPost, "/land", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Success)
}

func TestServerMoveQueryFallback(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/connect", "")
	doRequest(t, s, http.MethodPost, "/takeoff", "")

	rec, out := doRequest(t, s, http.MethodPost, "/move?direction=up&distance=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Success)
}

func TestServerBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doRequest(t, s, http.MethodPost, "/move", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, s, http.MethodPost, "/move?direction=up&distance=far", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A parseable but invalid command is a 200 with a failed outcome.
	rec, out := doRequest(t, s, http.MethodPost, "/move", `{"direction":"sideways","distance":100}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, out.Success)
}

func TestServerOperationLog(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/connect", "")

	rec, _ := doRequest(t, s, http.MethodGet, "/log", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                      `json:"success"`
		Log     []drone.OperationLogEntry `json:"log"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Log)
	assert.Equal(t, "connect", resp.Log[0].Operation)
}

func TestServerMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/connect", "")

	rec, _ := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tellolink_drone_connectivity_status 1")
	assert.Contains(t, rec.Body.String(), "tellolink_commands_total")
}

func TestServerCORS(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
