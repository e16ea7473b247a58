package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/TripPipe/internal/models"
)

type createSessionRequest struct {
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

// createSessionHandler opens a session under a fresh id and returns the greeting.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.createSessionHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}

	id := uuid.NewString()
	userID := req.UserID
	if userID == "" {
		userID = id
	}
	slog.Info("Server.createSessionHandler: session created", "session", id, "user", userID)
	s.applyTurn(w, r, http.StatusCreated, models.Turn{
		SessionID: id,
		UserID:    userID,
		Intent:    string(models.IntentGreet),
	})
}

// turnHandler accepts an already labelled turn.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: invalid JSON", "session", sessionID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		slog.Debug("Server.turnHandler: validation failed", "session", sessionID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}

	s.applyTurn(w, r, http.StatusOK, models.Turn{
		SessionID: sessionID,
		UserID:    req.UserID,
		TurnID:    req.TurnID,
		Intent:    req.Intent,
		Entities:  req.Entities,
	})
}

// messageHandler labels raw text with the language model and applies the result.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if s.parser == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Language understanding is not configured"))
		return
	}
	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: invalid JSON", "session", sessionID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	turn, err := s.parser.Parse(ctx, req.Text)
	if err != nil {
		var se *models.ServiceError
		if errors.As(err, &se) {
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Language understanding failed"))
			return
		}
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	turn.SessionID = sessionID
	turn.UserID = req.UserID
	turn.TurnID = req.TurnID
	s.applyTurn(w, r, http.StatusOK, turn)
}

func (s *Server) applyTurn(w http.ResponseWriter, r *http.Request, status int, turn models.Turn) {
	if turn.UserID == "" {
		turn.UserID = turn.SessionID
	}
	turn.Received = time.Now().UTC()

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	res, err := s.sessions.HandleTurn(ctx, turn)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrDuplicateTurn):
		writeJSONResponse(w, http.StatusConflict, models.Error("Turn already processed"))
		return
	case errors.Is(err, models.ErrEmptySessionID), errors.Is(err, models.ErrEmptyIntent):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.applyTurn: turn failed", "session", turn.SessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}
	if res.Directives == nil {
		res.Directives = []models.Directive{}
	}
	writeJSONResponse(w, status, models.Success(res))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	st, err := s.sessions.Snapshot(sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	if err != nil {
		slog.Error("Server.getSessionHandler: snapshot failed", "session", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(st))
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := s.sessions.EndSession(sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.endSessionHandler: end failed", "session", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to end session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session ended", nil))
}

func (s *Server) listPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	prefs, err := s.prefs.ListPreferences(r.Context(), userID)
	if err != nil {
		slog.Error("Server.listPreferencesHandler: list failed", "user", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list preferences"))
		return
	}
	if prefs == nil {
		prefs = []models.Preference{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"preferences": prefs,
		"count":       len(prefs),
	}))
}

func (s *Server) getPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	userID, key := r.PathValue("id"), r.PathValue("key")
	pref, ok, err := s.prefs.GetPreference(r.Context(), userID, key)
	if err != nil {
		slog.Error("Server.getPreferenceHandler: lookup failed", "user", userID, "key", key, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read preference"))
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Preference not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pref))
}

func (s *Server) setPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	userID, key := r.PathValue("id"), r.PathValue("key")
	var req models.PreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}
	if err := s.prefs.SetPreference(r.Context(), userID, key, req.Value); err != nil {
		if errors.Is(err, models.ErrEmptyPreference) || errors.Is(err, models.ErrEmptyUserID) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.setPreferenceHandler: save failed", "user", userID, "key", key, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save preference"))
		return
	}
	slog.Info("Server.setPreferenceHandler: preference saved", "user", userID, "key", key)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Preference saved", nil))
}

func (s *Server) deletePreferenceHandler(w http.ResponseWriter, r *http.Request) {
	userID, key := r.PathValue("id"), r.PathValue("key")
	removed, err := s.prefs.DeletePreference(r.Context(), userID, key)
	if err != nil {
		slog.Error("Server.deletePreferenceHandler: delete failed", "user", userID, "key", key, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete preference"))
		return
	}
	if !removed {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Preference not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Preference deleted", nil))
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if s.ledger == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Booking ledger is not configured"))
		return
	}
	recs, err := s.ledger.ListBookings(r.Context(), userID)
	if err != nil {
		slog.Error("Server.listBookingsHandler: list failed", "user", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list bookings"))
		return
	}
	if recs == nil {
		recs = []models.BookingRecord{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"bookings": recs,
		"count":    len(recs),
	}))
}

func (s *Server) listTimersHandler(w http.ResponseWriter, r *http.Request) {
	if s.timers == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Timer inspection is not available"))
		return
	}
	timers := s.timers.ListActive()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"timers": timers,
		"count":  len(timers),
	}))
}

func (s *Server) getTimerHandler(w http.ResponseWriter, r *http.Request) {
	if s.timers == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Timer inspection is not available"))
		return
	}
	id := r.PathValue("id")
	info, err := s.timers.GetTimer(id)
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Timer not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(info))
}

func (s *Server) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Job inspection is not available"))
		return
	}
	jobs := s.jobs.Jobs()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	}))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"active_sessions": s.sessions.Count(),
		"nlu":             s.parser != nil,
	})
}
