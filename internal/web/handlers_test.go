package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/SkyGo/internal/link/frame"
	"github.com/cjeanneret/SkyGo/internal/logic/capture"
	"github.com/cjeanneret/SkyGo/internal/logic/scheduler"
)

type fakeStatus struct{ snap scheduler.Snapshot }

func (f *fakeStatus) Snapshot() scheduler.Snapshot { return f.snap }

type submissions struct {
	mu   sync.Mutex
	msgs []frame.Message
}

func (s *submissions) submit(m frame.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func newTestHandlers(submit SubmitFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	status := &fakeStatus{snap: scheduler.Snapshot{
		State:      "COMM_READ",
		Calibrated: true,
		Azimuth:    120,
		Altitude:   35,
		Queue: []capture.Command{
			{TargetID: 5, CaptureID: "m31-a", PositionIndex: 1, FireTime: time.Date(2026, 3, 21, 22, 10, 0, 0, time.UTC)},
		},
	}}
	return NewHandlers(
		NewStatusBroadcaster(),
		status,
		submit,
		Settings{
			Latitude:     46.2,
			Longitude:    6.15,
			VerticalRPM:  10,
			MinRPM:       1,
			MaxRPM:       15,
			SlotInterval: "10m0s",
			Camera:       "link",
			Targets:      []TargetInfo{{ID: 1, Name: "Polaris", RADeg: 37.95, DecDeg: 89.26}},
		},
		staticFS,
	)
}

func scheduleJSON(r ScheduleRequest) []byte {
	data, _ := json.Marshal(r)
	return data
}

// ---------- HandleSchedule ----------

func TestHandleSchedule_ValidPost(t *testing.T) {
	var got submissions
	h := newTestHandlers(got.submit)
	req := httptest.NewRequest(http.MethodPost, "/schedule",
		bytes.NewReader(scheduleJSON(ScheduleRequest{TargetID: 5, CaptureID: "m31-b", PositionIndex: 2})))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleSchedule(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "queued" {
		t.Errorf("response status = %q, want \"queued\"", resp["status"])
	}
	want := frame.NewMessage(frame.KindInstructions, "5", "m31-b", "2")
	if len(got.msgs) != 1 || !got.msgs[0].Equal(want) {
		t.Errorf("submitted = %v, want %v", got.msgs, want)
	}
}

func TestHandleSchedule_Rejected(t *testing.T) {
	cases := []struct {
		name string
		req  ScheduleRequest
	}{
		{"target_zero", ScheduleRequest{0, "a", 1}},
		{"target_100", ScheduleRequest{100, "a", 1}},
		{"empty_id", ScheduleRequest{1, "", 1}},
		{"id_with_comma", ScheduleRequest{1, "a,b", 1}},
		{"id_with_semicolon", ScheduleRequest{1, "a;b", 1}},
		{"index_zero", ScheduleRequest{1, "a", 0}},
		{"index_four", ScheduleRequest{1, "a", 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got submissions
			h := newTestHandlers(got.submit)
			req := httptest.NewRequest(http.MethodPost, "/schedule", bytes.NewReader(scheduleJSON(tc.req)))
			w := httptest.NewRecorder()

			h.HandleSchedule(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(got.msgs) != 0 {
				t.Error("rejected request was submitted")
			}
		})
	}
}

func TestHandleSchedule_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodGet, "/schedule", nil)
	w := httptest.NewRecorder()

	h.HandleSchedule(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleSchedule_InvalidJSON(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodPost, "/schedule", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.HandleSchedule(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSchedule_OversizedBody(t *testing.T) {
	h := newTestHandlers(nil)
	big := `{"capture_id":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/schedule", strings.NewReader(big))
	w := httptest.NewRecorder()

	h.HandleSchedule(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSchedule_NilSubmit(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodPost, "/schedule",
		bytes.NewReader(scheduleJSON(ScheduleRequest{TargetID: 1, CaptureID: "a", PositionIndex: 1})))
	w := httptest.NewRecorder()

	h.HandleSchedule(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- HandleStatus ----------

func TestHandleStatus(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap scheduler.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "COMM_READ" || !snap.Calibrated || snap.Azimuth != 120 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Queue) != 1 || snap.Queue[0].CaptureID != "m31-a" {
		t.Errorf("queue = %+v", snap.Queue)
	}
}

func TestHandleStatus_NoController(t *testing.T) {
	h := newTestHandlers(nil)
	h.Status = nil
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- HandleConfig ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var s Settings
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Latitude != 46.2 || s.Longitude != 6.15 {
		t.Errorf("site = %v,%v, want 46.2,6.15", s.Latitude, s.Longitude)
	}
	if s.MaxRPM != 15 || s.Camera != "link" {
		t.Errorf("settings = %+v", s)
	}
	if len(s.Targets) != 1 || s.Targets[0].Name != "Polaris" {
		t.Errorf("targets = %+v", s.Targets)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, nil, Settings{}, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream(t *testing.T) {
	h := newTestHandlers(nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleStatusStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != ": connected\n" {
		t.Fatalf("first line = %q, want \": connected\"", line)
	}
	for h.Broadcaster.Clients() == 0 {
		time.Sleep(time.Millisecond)
	}
	h.Broadcaster.Broadcast("live", "State SLEEP -> COMM_READ")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		if evt.Level != "live" || evt.Msg != "State SLEEP -> COMM_READ" {
			t.Errorf("event = %+v", evt)
		}
		return
	}
}

// ---------- Server ----------

func TestServer_Routes(t *testing.T) {
	var got submissions
	s, err := NewServer("127.0.0.1:0", NewStatusBroadcaster(), &fakeStatus{}, got.submit, Settings{Camera: "link"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	cases := []struct {
		method, path string
		body         string
		want         int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/status", "", http.StatusOK},
		{http.MethodGet, "/config", "", http.StatusOK},
		{http.MethodPost, "/schedule", `{"target_id":1,"capture_id":"x","position_index":1}`, http.StatusAccepted},
		{http.MethodGet, "/schedule", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}
	if len(got.msgs) != 1 {
		t.Errorf("submitted %d messages, want 1", len(got.msgs))
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", NewStatusBroadcaster(), nil, nil, Settings{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
