package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/core"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	engine, err := core.New(config.DefaultConfig())
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	s := New(engine, ":0")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
}

func TestAddEventEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/event/add", types.EventSpec{
		EventType:   types.EventDecision,
		Description: "served a decision over http",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var event types.BehavioralEvent
	decode(t, resp, &event)
	if event.ID == "" {
		t.Error("response must include the assigned id")
	}
}

func TestAddEventValidationMapsTo400(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/event/add", types.EventSpec{EventType: types.EventDecision})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("validation error should map to 400, got %d", resp.StatusCode)
	}
}

func TestGetEventNotFoundMapsTo404(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/events/no-such-id")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id should map to 404, got %d", resp.StatusCode)
	}
}

func TestImportEndpointReportsPartialFailures(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/import/events", map[string]interface{}{
		"events": []types.EventSpec{
			{EventType: types.EventDecision, Description: "valid"},
			{EventType: types.EventDecision}, // invalid
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Imported int      `json:"imported"`
		Failed   int      `json:"failed"`
		Errors   []string `json:"errors"`
	}
	decode(t, resp, &out)
	if out.Imported != 1 || out.Failed != 1 {
		t.Errorf("expected 1 imported and 1 failed, got %+v", out)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/event/add", types.EventSpec{
		EventType:   types.EventProject,
		Description: "launched the metrics dashboard",
	}).Body.Close()

	resp, err := http.Get(ts.URL + "/search?q=metrics+dashboard")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Results []types.SearchResult `json:"results"`
	}
	decode(t, resp, &out)
	if len(out.Results) == 0 {
		t.Error("expected search hits for an ingested event")
	}

	// Empty query is a client error.
	resp, err = http.Get(ts.URL + "/search")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty query should map to 400, got %d", resp.StatusCode)
	}
}

func TestDetectAndHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	for i := 0; i < 2; i++ {
		postJSON(t, ts.URL+"/event/add", types.EventSpec{
			EventType:     types.EventDecision,
			Description:   fmt.Sprintf("repeat decision %d", i),
			DecisionLogic: "pick boring technology",
		}).Body.Close()
	}

	resp := postJSON(t, ts.URL+"/patterns/detect", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detect: expected 200, got %d", resp.StatusCode)
	}
	var detect struct {
		Count int `json:"count"`
	}
	decode(t, resp, &detect)
	if detect.Count == 0 {
		t.Error("expected detected patterns")
	}

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var health struct {
		Status string `json:"status"`
		Events int    `json:"events"`
	}
	decode(t, resp, &health)
	if health.Status != "ok" || health.Events != 2 {
		t.Errorf("unexpected health payload: %+v", health)
	}
}

func TestExportEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/event/add", types.EventSpec{
		EventType:   types.EventDecision,
		Description: "exported over http",
	}).Body.Close()

	resp, err := http.Get(ts.URL + "/export/full")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var snap types.Snapshot
	decode(t, resp, &snap)
	if len(snap.Events) != 1 {
		t.Errorf("expected 1 event in export, got %d", len(snap.Events))
	}
}

func TestWebSocketLiveFeed(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Command channel: ping answers pong.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var pong struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if pong.Type != "pong" {
		t.Errorf("expected pong, got %q", pong.Type)
	}

	// Engine updates are pushed as they happen.
	postJSON(t, ts.URL+"/event/add", types.EventSpec{
		EventType:   types.EventInteraction,
		Description: "live feed check",
	}).Body.Close()

	var update struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update failed: %v", err)
	}
	if update.Type != "event" {
		t.Errorf("expected event update, got %q", update.Type)
	}
}
