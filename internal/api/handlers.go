package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/ingest"
	"sensor-anomaly/internal/models"
)

const (
	maxBodyBytes        = 10 << 20
	defaultAnomalyLimit = 10
)

type detectRequest struct {
	Readings []models.Reading      `json:"readings"`
	Config   config.DetectionPatch `json:"config"`
}

type currentAnalytics struct {
	Summary     models.Summary       `json:"summary"`
	EntityStats []models.EntityStats `json:"entityStats"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"version":     version,
		"queue_depth": len(s.queue),
	})
}

func (s *Server) ingestReadingsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	readings, err := ingest.DecodeReadings(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := 0
	for _, reading := range readings {
		if !s.Enqueue(reading, "http") {
			break
		}
		accepted++
	}
	if accepted < len(readings) {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":    "queue full",
			"accepted": accepted,
		})
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"accepted": accepted,
	})
}

func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Config.IsEmpty() {
		s.writeJSON(w, http.StatusOK, s.analyzer.Analyze(req.Readings))
		return
	}
	result, err := s.analyzer.AnalyzeWith(req.Readings, req.Config)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) getAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	result, ok := s.detectBuffered(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, currentAnalytics{
		Summary:     result.Summary,
		EntityStats: result.EntityStats,
	})
}

func (s *Server) getAnomaliesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultAnomalyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	result, ok := s.detectBuffered(w, r)
	if !ok {
		return
	}
	anomalies := result.Anomalies
	if len(anomalies) > limit {
		anomalies = anomalies[:limit]
	}
	s.writeJSON(w, http.StatusOK, anomalies)
}

func (s *Server) detectBuffered(w http.ResponseWriter, r *http.Request) (models.DetectionResult, bool) {
	readings, err := s.store.RecentReadings(r.Context(), s.buffer.MaxReadings)
	if err != nil {
		s.logger.Error("failed to load buffered readings", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load buffered readings")
		return models.DetectionResult{}, false
	}
	return s.analyzer.Analyze(readings), true
}

func (s *Server) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.analyzer.Config())
}

func (s *Server) updateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var patch config.DetectionPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid config patch: "+err.Error())
		return
	}

	cfg, err := s.analyzer.UpdateConfig(patch)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
