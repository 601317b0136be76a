package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
	"github.com/cjeanneret/SkyGo/internal/logic/scheduler"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 4 << 10

// StatusSource supplies the controller status.
type StatusSource interface {
	Snapshot() scheduler.Snapshot
}

// SubmitFunc hands an instructions message to the controller loop.
type SubmitFunc func(m frame.Message)

// ScheduleRequest is the body of POST /schedule.
type ScheduleRequest struct {
	TargetID      int    `json:"target_id"`
	CaptureID     string `json:"capture_id"`
	PositionIndex int    `json:"position_index"`
}

// Message builds the instructions message for r.
func (r ScheduleRequest) Message() frame.Message {
	return frame.NewMessage(frame.KindInstructions,
		strconv.Itoa(r.TargetID), r.CaptureID, strconv.Itoa(r.PositionIndex))
}

// TargetInfo is one catalog entry shown on the page.
type TargetInfo struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	RADeg  float64 `json:"ra_deg"`
	DecDeg float64 `json:"dec_deg"`
}

// Settings is the read-only configuration summary served on GET /config.
type Settings struct {
	Latitude             float64      `json:"latitude"`
	Longitude            float64      `json:"longitude"`
	HeadingCorrectionDeg float64      `json:"heading_correction_deg"`
	VerticalRPM          float64      `json:"vertical_rpm"`
	MinRPM               float64      `json:"min_rpm"`
	MaxRPM               float64      `json:"max_rpm"`
	SlotInterval         string       `json:"slot_interval"`
	Camera               string       `json:"camera"`
	Targets              []TargetInfo `json:"targets"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Status      StatusSource
	Submit      SubmitFunc
	Settings    Settings
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If submit is nil, POST /schedule returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, status StatusSource, submit SubmitFunc, settings Settings, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Status:      status,
		Submit:      submit,
		Settings:    settings,
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HandleStatus returns the latest controller snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		http.Error(w, "controller not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Status.Snapshot())
}

// HandleConfig returns the site and mount settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleSchedule handles POST /schedule. The request is checked with the
// same rules as an instructions frame from the link peer.
func (h *Handlers) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	m := req.Message()
	if _, err := scheduler.ParseInstruction(m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Submit == nil {
		http.Error(w, "scheduling not available", http.StatusServiceUnavailable)
		return
	}

	h.Submit(m)
	h.Broadcaster.BroadcastMsg("Instruction queued: " + req.CaptureID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()
	debug.Verbose("Status stream client connected (%d open)", h.Broadcaster.Clients())

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
