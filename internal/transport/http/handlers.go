package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"smart-stick/tracker/internal/auth"
	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/firmware"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/service"
	"smart-stick/tracker/internal/store"
)

const (
	maxBodyBytes    = 64 << 10
	maxHistoryLimit = 5000
)

type TrackingService interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (service.IngestResult, error)
	Latest(ctx context.Context, stickID string) (domain.TelemetryReport, error)
	History(ctx context.Context, stickID string, q service.HistoryQuery) ([]domain.HistoryPoint, error)
	ClearEmergency(ctx context.Context, stickID string) error
	UpdatePushToken(ctx context.Context, stickID, token string) error
}

// Checker reports whether a dependency is ready to serve.
type Checker func(ctx context.Context) error

type Handlers struct {
	tracking TrackingService
	firmware *firmware.Service
	checks   map[string]Checker
}

func NewHandlers(tracking TrackingService, fw *firmware.Service, checks map[string]Checker) *Handlers {
	return &Handlers{tracking: tracking, firmware: fw, checks: checks}
}

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"message": "Smart Stick Backend is running.",
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			log.Warn("Readiness check failed", "dependency", name, "error", err.Error())
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("%s unavailable", name))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) PostLocation(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	res, err := h.tracking.Ingest(r.Context(), req)
	if errors.Is(err, service.ErrValidation) {
		writeError(w, http.StatusBadRequest, "Missing stickId, latitude, or longitude.")
		return
	}
	if err != nil {
		log.Error(err, "Failed to ingest report", "stickId", req.StickID)
		writeError(w, http.StatusInternalServerError, "Server error saving data")
		return
	}

	writeJSON(w, http.StatusCreated, messageBody{
		Message: "Location data saved successfully!",
		Command: res.Command,
	})
}

func (h *Handlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	report, err := h.tracking.Latest(r.Context(), p.StickID)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No location data found for this stick.")
		return
	}
	if err != nil {
		log.Error(err, "Failed to load latest report", "stickId", p.StickID)
		writeError(w, http.StatusInternalServerError, "Server error fetching latest data")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit.")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	tr, err := store.ParseTimeRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid startDate or endDate.")
		return
	}

	points, err := h.tracking.History(r.Context(), p.StickID, service.HistoryQuery{Limit: limit, Range: tr})
	if err != nil {
		log.Error(err, "Failed to load history", "stickId", p.StickID)
		writeError(w, http.StatusInternalServerError, "Server error fetching history")
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *Handlers) ClearEmergency(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	if err := h.tracking.ClearEmergency(r.Context(), p.StickID); err != nil {
		log.Error(err, "Failed to clear emergency", "stickId", p.StickID)
		writeError(w, http.StatusInternalServerError, "Server error clearing emergency.")
		return
	}
	writeMessage(w, http.StatusOK, "Emergency status cleared.")
}

type pushTokenRequest struct {
	FCMToken string `json:"fcmToken"`
}

func (h *Handlers) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req pushTokenRequest
	// An unreadable body is treated like a missing token.
	_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)

	err := h.tracking.UpdatePushToken(r.Context(), p.StickID, req.FCMToken)
	if errors.Is(err, service.ErrValidation) {
		writeError(w, http.StatusBadRequest, "FCM token is required.")
		return
	}
	if err != nil {
		log.Error(err, "Failed to save push token", "stickId", p.StickID)
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}
	writeMessage(w, http.StatusOK, "FCM token updated successfully.")
}

func (h *Handlers) FirmwareUpdate(w http.ResponseWriter, r *http.Request) {
	version := r.Header.Get("x-esp32-version")
	log.Info("OTA check", "deviceVersion", version, "latestVersion", h.firmware.LatestVersion())

	if h.firmware.UpToDate(version) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	img, err := h.firmware.Latest(r.Context())
	if errors.Is(err, firmware.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Firmware file not found.")
		return
	}
	if err != nil {
		log.Error(err, "Failed to open firmware image")
		writeError(w, http.StatusInternalServerError, "Server error fetching firmware")
		return
	}
	defer img.Body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", img.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, img.Body); err != nil {
		log.Error(err, "Firmware transfer interrupted", "version", img.Version)
	}
}
