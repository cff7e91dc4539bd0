package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mattjoyce/kolibrid/internal/protocol"
	"github.com/mattjoyce/kolibrid/internal/state"
)

// statusResponse is the /v1/status payload.
type statusResponse struct {
	Context      state.Snapshot `json:"context"`
	Revision     int64          `json:"revision"`
	WorkerExited bool           `json:"worker_exited"`
	UptimeSec    int64          `json:"uptime_seconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, rev, err := s.manager.Context(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load context: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Context:      snap,
		Revision:     rev,
		WorkerExited: s.manager.Exited(),
		UptimeSec:    int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.sendCommand(w, protocol.CommandStartKolibri, s.manager.StartKolibri)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sendCommand(w, protocol.CommandStopKolibri, s.manager.StopKolibri)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.sendCommand(w, protocol.CommandShutdown, s.manager.Shutdown)
}

// sendCommand dispatches a lifecycle command to the worker. Commands are
// accepted, not awaited; callers observe the outcome via /v1/events or
// /v1/status.
func (s *Server) sendCommand(w http.ResponseWriter, cmd protocol.Command, send func() error) {
	if err := send(); err != nil {
		if errors.Is(err, protocol.ErrChannelClosed) {
			writeError(w, http.StatusConflict, "worker is not running")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to send command: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"command":  string(cmd),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
