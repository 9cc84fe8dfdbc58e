package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/matchcam/core/internal/control"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/preview"
	"github.com/matchcam/core/internal/recording"
)

// newHTTPServer binds the §6.1 control command set onto a chi router, one
// JSON endpoint per command. It is a thin transport: every handler does
// request decoding, a single call into the Control Surface, and response
// encoding — no business logic lives here.
func newHTTPServer(addr string, surface *control.Surface, logger *logging.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(20, time.Minute))

	r.Get("/v1/status", handleGetStatus(surface))
	r.Post("/v1/recording/start", handleStartRecording(surface))
	r.Post("/v1/recording/stop", handleStopRecording(surface))
	r.Post("/v1/preview/start", handleStartPreview(surface))
	r.Post("/v1/preview/stop", handleStopPreview(surface))
	r.Post("/v1/preview/restart", handleRestartPreview(surface))
	r.Get("/v1/recording/health", handleGetRecordingHealth(surface))
	r.Get("/v1/alerts", handleGetAlerts(surface))

	return &http.Server{Addr: addr, Handler: r}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, map[string]string{"error": kind, "detail": err.Error()})
}

func handleGetStatus(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surface.GetStatus())
	}
}

func handleStartRecording(surface *control.Surface) http.HandlerFunc {
	type requestBody struct {
		MatchID           string `json:"match_id"`
		Force             bool   `json:"force"`
		RequireAllCameras *bool  `json:"require_all_cameras"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		resp, err := surface.StartRecording(r.Context(), control.StartRecordingRequest{
			MatchID:           body.MatchID,
			Force:             body.Force,
			RequireAllCameras: body.RequireAllCameras,
		})
		if err != nil {
			var already *recording.AlreadyRecordingError
			var startFailed *recording.StartFailedError
			switch {
			case errors.As(err, &already):
				writeError(w, http.StatusConflict, "AlreadyRecording", err)
			case errors.As(err, &startFailed):
				// resp is filled in with success=false and the partial
				// per-camera failures (spec §6.1 start_recording example 4).
				writeJSON(w, http.StatusOK, resp)
			default:
				writeError(w, http.StatusServiceUnavailable, "LockUnavailable", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleStopRecording(surface *control.Surface) http.HandlerFunc {
	type requestBody struct {
		Force bool `json:"force"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		report, err := surface.StopRecording(r.Context(), control.StopRecordingRequest{Force: body.Force})
		if err != nil {
			var protected *recording.ProtectedStopError
			var notRecording *recording.NotRecordingError
			switch {
			case errors.As(err, &protected):
				writeJSON(w, http.StatusConflict, map[string]any{
					"error": "ProtectedStop", "remaining_seconds": protected.RemainingSeconds,
				})
			case errors.As(err, &notRecording):
				writeError(w, http.StatusConflict, "NotRecording", err)
			default:
				writeError(w, http.StatusInternalServerError, "StopFailed", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleStartPreview(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := surface.StartPreview(r.Context(), decodeCameraIDs(r))
		if err != nil {
			var recActive *preview.RecordingActiveError
			if errors.As(err, &recActive) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "RecordingActive"})
				return
			}
			writeError(w, http.StatusServiceUnavailable, "LockUnavailable", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleStopPreview(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surface.StopPreview(decodeCameraIDs(r)))
	}
}

func handleRestartPreview(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := surface.RestartPreview(r.Context(), decodeCameraIDs(r))
		if err != nil {
			var recActive *preview.RecordingActiveError
			if errors.As(err, &recActive) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "RecordingActive"})
				return
			}
			writeError(w, http.StatusServiceUnavailable, "LockUnavailable", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGetRecordingHealth(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surface.GetRecordingHealth())
	}
}

func handleGetAlerts(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		max := 0
		if v := r.URL.Query().Get("max"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				max = n
			}
		}
		writeJSON(w, http.StatusOK, surface.GetAlerts(max))
	}
}

// decodeCameraIDs reads the optional repeated ?camera_id= query parameter;
// an absent parameter means "both cameras" (spec §6.1 "null = both").
func decodeCameraIDs(r *http.Request) []int {
	values := r.URL.Query()["camera_id"]
	if len(values) == 0 {
		return nil
	}
	ids := make([]int, 0, len(values))
	for _, v := range values {
		if n, err := strconv.Atoi(v); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}
