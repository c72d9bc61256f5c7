package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/network"
	"github.com/gravitas-games/prodsim/internal/sim"
)

func startServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	w, err := sim.NewWorld(cfg.Simulation)
	require.NoError(t, err)

	srv, err := New(cfg, w)
	require.NoError(t, err)
	srv.RunSession()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown())
		ts.Close()
		w.Close()
	})
	return srv, ts
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.TickRate = 100
	return cfg
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readUntil(t *testing.T, ws *websocket.Conn, typ string) received {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var m received
		require.NoError(t, ws.ReadJSON(&m))
		if m.Type == typ {
			return m
		}
	}
}

func TestServerWelcomesAndSnapshots(t *testing.T) {
	_, ts := startServer(t, testConfig())

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first received
	require.NoError(t, ws.ReadJSON(&first))
	require.Equal(t, network.MsgTypeWelcome, first.Type)

	var welcome network.WelcomePayload
	require.NoError(t, json.Unmarshal(first.Payload, &welcome))
	assert.Equal(t, "anonymous", welcome.Username)
	assert.NotEmpty(t, welcome.ObserverID)
	assert.NotEmpty(t, welcome.SessionID)
	assert.Equal(t, 100, welcome.SessionStatus.TickRate)

	m := readUntil(t, ws, network.MsgTypeSnapshotResult)
	var snap sim.Snapshot
	require.NoError(t, json.Unmarshal(m.Payload, &snap))
	assert.Len(t, snap.Buildings, 4)

	require.NoError(t, ws.WriteJSON(network.ClientMessage{Type: network.MsgTypePing}))
	readUntil(t, ws, network.MsgTypePong)

	require.NoError(t, ws.WriteJSON(network.ClientMessage{
		Type:    network.MsgTypeEnterStorage,
		Payload: json.RawMessage(`{"building_id":42,"role":"input"}`),
	}))
	m = readUntil(t, ws, network.MsgTypeError)
	var e network.ErrorPayload
	require.NoError(t, json.Unmarshal(m.Payload, &e))
	assert.Equal(t, network.ErrCodeUnknownBuilding, e.Code)

	readUntil(t, ws, network.MsgTypeTransferStarted)
}

func TestServerHealth(t *testing.T) {
	srv, ts := startServer(t, testConfig())

	require.Eventually(t, func() bool {
		return srv.Session().GetStatus().ServerTick > 0
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status    string `json:"status"`
		State     string `json:"state"`
		Tick      uint64 `json:"tick"`
		Observers int    `json:"observers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "running", body.State)
	assert.Greater(t, body.Tick, uint64(0))
	assert.Equal(t, 0, body.Observers)
}

func TestServerMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	_, ts := startServer(t, cfg)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), "prodsim_sim_ticks_total") &&
			strings.Contains(string(body), "prodsim_transfer_started_total")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServerWithoutMetricsHasNoEndpoint(t *testing.T) {
	_, ts := startServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRequiresToken(t *testing.T) {
	key := newKey(t)
	pemData := publicPEM(t, &key.PublicKey)
	keys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pemData)
	}))
	defer keys.Close()

	cfg := testConfig()
	cfg.JWT.Issuer = testIssuer
	cfg.JWT.PublicKeyURL = keys.URL
	_, ts := startServer(t, cfg)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sign(t, key, claimsFor(5, 1)))
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	defer ws.Close()

	m := readUntil(t, ws, network.MsgTypeWelcome)
	var welcome network.WelcomePayload
	require.NoError(t, json.Unmarshal(m.Payload, &welcome))
	assert.Equal(t, "ada", welcome.Username)
}

func TestNewFailsWithoutKeyServer(t *testing.T) {
	keys := httptest.NewServer(http.NotFoundHandler())
	keys.Close()

	cfg := testConfig()
	cfg.JWT.PublicKeyURL = keys.URL
	w, err := sim.NewWorld(cfg.Simulation)
	require.NoError(t, err)
	defer w.Close()

	_, err = New(cfg, w)
	assert.Error(t, err)
}
