package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"netmon-sim/internal/aggregator"
	"netmon-sim/internal/telemetry"
)

var testTS = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeFleet is a fixed two-device fleet.
type fakeFleet struct {
	devices []telemetry.Device
	forced  map[string]telemetry.Status
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{
		devices: []telemetry.Device{
			{ID: "dev-1", Name: "Gateway-1", Address: "127.0.0.1", Status: telemetry.StatusOnline, Bandwidth: 12},
			{ID: "dev-2", Name: "Google-DNS", Address: "8.8.8.8", Status: telemetry.StatusOffline},
		},
		forced: map[string]telemetry.Status{},
	}
}

func (f *fakeFleet) ListDevices() []telemetry.Device {
	out := make([]telemetry.Device, len(f.devices))
	copy(out, f.devices)
	return out
}

func (f *fakeFleet) ForceStatus(id string, st telemetry.Status) bool {
	for _, d := range f.devices {
		if d.ID == id {
			f.forced[id] = st
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T) (*Server, *fakeFleet, *aggregator.Aggregator) {
	t.Helper()
	fleet := newFakeFleet()
	agg := aggregator.New([]string{"dev-1", "dev-2"}, aggregator.WithClock(func() time.Time { return testTS }))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("lab-01", fleet, agg, log)
	s.now = func() time.Time { return testTS }
	agg.SubscribeLogs(s.OnLog)
	return s, fleet, agg
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleDevices(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/devices")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Devices []telemetry.Device `json:"devices"`
		TS      time.Time          `json:"ts"`
	}
	decode(t, w, &body)
	if len(body.Devices) != 2 || body.Devices[0].Address != "127.0.0.1" {
		t.Fatalf("unexpected devices: %+v", body.Devices)
	}
	if !body.TS.Equal(testTS) {
		t.Fatalf("ts = %v", body.TS)
	}
}

func TestHandleHistory(t *testing.T) {
	s, _, agg := newTestServer(t)
	agg.OnSnapshot(telemetry.Snapshot{Timestamp: testTS, Devices: newFakeFleet().devices})

	w := do(t, s, http.MethodGet, "/api/history/dev-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		DeviceID string                    `json:"deviceId"`
		History  []telemetry.HistorySample `json:"history"`
	}
	decode(t, w, &body)
	if body.DeviceID != "dev-1" || len(body.History) != 1 || body.History[0].Bandwidth != 12 {
		t.Fatalf("unexpected history: %+v", body)
	}

	w = do(t, s, http.MethodGet, "/api/history/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d", w.Code)
	}
	var errBody struct {
		Error struct {
			Message string `json:"message"`
			Status  int    `json:"status"`
		} `json:"error"`
	}
	decode(t, w, &errBody)
	if errBody.Error.Status != http.StatusNotFound || errBody.Error.Message != "device not found" {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestHandleLogs(t *testing.T) {
	s, _, agg := newTestServer(t)
	for i := 0; i < 5; i++ {
		agg.AppendLog(telemetry.LevelInfo, "entry", "")
	}
	var body struct {
		Logs []telemetry.LogEntry `json:"logs"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/logs?limit=2"), &body)
	if len(body.Logs) != 2 {
		t.Fatalf("limit=2 returned %d logs", len(body.Logs))
	}
	decode(t, do(t, s, http.MethodGet, "/api/logs?limit=bogus"), &body)
	if len(body.Logs) != 5 {
		t.Fatalf("bad limit should use default, got %d", len(body.Logs))
	}
}

func TestHandleLogsCappedForLiveQueries(t *testing.T) {
	s, _, agg := newTestServer(t)
	for i := 0; i < 300; i++ {
		agg.AppendLog(telemetry.LevelInfo, fmt.Sprintf("entry %d", i), "")
	}
	var body struct {
		Logs []telemetry.LogEntry `json:"logs"`
	}
	decode(t, do(t, s, http.MethodGet, "/api/logs?limit=1000"), &body)
	if len(body.Logs) != aggregator.DefaultLogLimit {
		t.Fatalf("limit=1000 returned %d logs, want %d", len(body.Logs), aggregator.DefaultLogLimit)
	}
	if body.Logs[len(body.Logs)-1].Message != "entry 299" {
		t.Fatalf("newest entry = %q", body.Logs[len(body.Logs)-1].Message)
	}
	if got := len(agg.GetLogs(1000)); got != 300 {
		t.Fatalf("store returned %d logs, want 300", got)
	}
}

func TestHandleSummary(t *testing.T) {
	s, _, _ := newTestServer(t)
	var sum telemetry.FleetSummary
	decode(t, do(t, s, http.MethodGet, "/api/summary"), &sum)
	if sum.Total != 2 || sum.Online != 1 || sum.Offline != 1 || sum.TotalBandwidth != 12 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestHandleForce(t *testing.T) {
	s, fleet, agg := newTestServer(t)

	if w := do(t, s, http.MethodPost, "/api/force/dev-1/degraded"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad status code = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/force/nope/offline"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown device code = %d", w.Code)
	}
	if len(agg.GetLogs(0)) != 0 {
		t.Fatalf("rejected requests must not log")
	}

	w := do(t, s, http.MethodPost, "/api/force/dev-1/offline")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		OK       bool   `json:"ok"`
		DeviceID string `json:"deviceId"`
		Status   string `json:"status"`
	}
	decode(t, w, &body)
	if !body.OK || body.DeviceID != "dev-1" || body.Status != "offline" {
		t.Fatalf("unexpected body %+v", body)
	}
	if fleet.forced["dev-1"] != telemetry.StatusOffline {
		t.Fatalf("force not applied")
	}
	logs := agg.GetLogs(0)
	if len(logs) != 1 || logs[0].Level != telemetry.LevelInfo || logs[0].DeviceID != "dev-1" {
		t.Fatalf("expected one info log, got %+v", logs)
	}
}

func TestHandleIndex(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "lab-01") {
		t.Fatalf("page should mention the cluster")
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func envType(t *testing.T, env map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	if err := json.Unmarshal(env["type"], &typ); err != nil {
		t.Fatalf("type: %v", err)
	}
	return typ
}

func TestWebSocketFeed(t *testing.T) {
	s, _, agg := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if typ := envType(t, readEnvelope(t, conn)); typ != "snapshot" {
		t.Fatalf("first frame = %s, want snapshot", typ)
	}
	if typ := envType(t, readEnvelope(t, conn)); typ != "logs" {
		t.Fatalf("second frame = %s, want logs", typ)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteJSON(map[string]string{"type": "getHistory", "deviceId": "missing"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readEnvelope(t, conn)
	if typ := envType(t, env); typ != "history" {
		t.Fatalf("frame = %s, want history", typ)
	}
	var hist struct {
		DeviceID string            `json:"deviceId"`
		History  []json.RawMessage `json:"history"`
	}
	if err := json.Unmarshal(env["data"], &hist); err != nil {
		t.Fatalf("history data: %v", err)
	}
	if hist.DeviceID != "missing" || hist.History == nil || len(hist.History) != 0 {
		t.Fatalf("unknown device should get empty history, got %s", env["data"])
	}

	ev := telemetry.TransitionEvent{DeviceID: "dev-1", Name: "Gateway-1", Address: "127.0.0.1", From: telemetry.StatusOnline, To: telemetry.StatusOffline, Timestamp: testTS}
	snap := telemetry.Snapshot{Timestamp: testTS, Devices: newFakeFleet().devices, Tick: 1}
	s.OnTransition(ev)
	agg.OnTransition(ev)
	agg.OnSnapshot(snap)
	s.OnSnapshot(snap)

	want := []string{"statusChange", "log", "deviceSnapshot"}
	for _, w := range want {
		if typ := envType(t, readEnvelope(t, conn)); typ != w {
			t.Fatalf("frame = %s, want %s", typ, w)
		}
	}
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	h := newHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}
	h.broadcast(Envelope{Type: "log"})
	h.broadcast(Envelope{Type: "log"})
	if got := h.dropped.Load(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
	if len(c.send) != 1 {
		t.Fatalf("buffer should hold one frame")
	}
}
