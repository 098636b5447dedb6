package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/ledger"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"llm_providers":  s.providers,
		"evaluation":     s.evaluation,
		"database":       s.cfg.Database.Driver,
		"catalog":        s.cfg.Catalog.Source,
		"catalog_cache":  s.cfg.Redis.Addr != "",
		"events":         s.eventsEnabled,
	})
}

// Submission handlers

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req ledger.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.ledger.Submit(r.Context(), req)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// Player handlers

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.progression.Stats(r.Context(), r.PathValue("player"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleVerifyStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.progression.Verify(r.Context(), r.PathValue("player"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"consistent": report.Consistent(),
		"report":     report,
	})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.jsonError(w, http.StatusBadRequest, "invalid limit", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	player := r.PathValue("player")
	attempts, err := s.ledger.ListAttempts(r.Context(), player, limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	views := make([]attemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, newAttemptView(a))
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"player_id": player,
		"attempts":  views,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	player := r.PathValue("player")
	progress, err := s.lifecycle.GetProgress(r.Context(), player)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"player_id": player,
		"levels":    progress,
	})
}

func (s *Server) handleStartLevel(w http.ResponseWriter, r *http.Request) {
	p, err := s.lifecycle.Start(r.Context(), r.PathValue("player"), r.PathValue("level"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

func (s *Server) handleCompleteLevel(w http.ResponseWriter, r *http.Request) {
	p, err := s.lifecycle.Complete(r.Context(), r.PathValue("player"), r.PathValue("level"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// Content handlers

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.catalog.Levels(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}

	views := make([]levelView, 0, len(levels))
	for _, l := range levels {
		views = append(views, newLevelView(l))
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"levels": views,
	})
}

func (s *Server) handleListLevelTasks(w http.ResponseWriter, r *http.Request) {
	levelID := r.PathValue("level")
	level, err := s.catalog.Level(r.Context(), levelID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	tasks, err := s.catalog.LevelTasks(r.Context(), level.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		v, err := domain.VisitTask[taskView](t, taskViewer{})
		if err != nil {
			s.logger.Warn("skipping task", "task_id", t.ID, "error", err)
			continue
		}
		views = append(views, v)
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"level": newLevelView(level),
		"tasks": views,
	})
}
