// Package api provides HTTP handlers for FormPilot endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/CivicForms/FormPilot/internal/dialogue"
	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/pdffill"
)

// formSummary is the public listing shape of a loaded form.
type formSummary struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Slots int    `json:"slots"`
}

// turnResult is the response body of dialogue-advancing endpoints.
type turnResult struct {
	SessionID string   `json:"session_id"`
	Messages  []string `json:"messages"`
	Completed bool     `json:"completed"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

func (s *Server) formsHandler(w http.ResponseWriter, r *http.Request) {
	forms := s.forms.Forms()
	summaries := make([]formSummary, 0, len(forms))
	for _, f := range forms {
		summaries = append(summaries, formSummary{Key: f.Key, Title: f.Title, Slots: len(f.Slots)})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}

func (s *Server) createDialogueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createDialogueHandler: processing create request")

	var req struct {
		Channel   string `json:"channel"`
		Recipient string `json:"recipient"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.createDialogueHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	}
	if req.Channel == "" {
		req.Channel = "api"
	}

	session, turn, err := s.sessions.Create(r.Context(), req.Channel, req.Recipient)
	if err != nil {
		slog.Error("Server.createDialogueHandler: failed to create session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create dialogue"))
		return
	}

	slog.Info("Server.createDialogueHandler: dialogue created", "sessionID", session.SessionID)
	writeJSONResponse(w, http.StatusCreated, models.Success(turnResult{
		SessionID: session.SessionID,
		Messages:  turn.Messages,
		Completed: turn.Completed,
	}))
}

func (s *Server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := r.PathValue("id")
	slog.Debug("Server.advanceHandler: processing advance request", "sessionID", sessionID)

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.advanceHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	turn, err := s.sessions.Advance(r.Context(), sessionID, req.Message)
	if err != nil {
		s.writeDialogueError(w, "advanceHandler", sessionID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turnResult{
		SessionID: sessionID,
		Messages:  turn.Messages,
		Completed: turn.Completed,
	}))
}

func (s *Server) getDialogueHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	session, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		s.writeDialogueError(w, "getDialogueHandler", sessionID, err)
		return
	}
	transcript, err := s.sessions.Transcript(r.Context(), sessionID)
	if err != nil {
		s.writeDialogueError(w, "getDialogueHandler", sessionID, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"session":    session,
		"transcript": transcript,
	}))
}

func (s *Server) documentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := r.PathValue("id")
	slog.Debug("Server.documentHandler: processing document upload", "sessionID", sessionID)

	mimeType := r.Header.Get("Content-Type")
	image, err := io.ReadAll(io.LimitReader(r.Body, MaxDocumentBytes+1))
	if err != nil {
		slog.Warn("Server.documentHandler: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read document"))
		return
	}
	if len(image) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Empty document"))
		return
	}
	if len(image) > MaxDocumentBytes {
		writeJSONResponse(w, http.StatusRequestEntityTooLarge, models.Error("Document too large"))
		return
	}

	turn, err := s.sessions.IngestDocument(r.Context(), sessionID, image, mimeType)
	if err != nil {
		s.writeDialogueError(w, "documentHandler", sessionID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turnResult{
		SessionID: sessionID,
		Messages:  turn.Messages,
		Completed: turn.Completed,
	}))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	session, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		s.writeDialogueError(w, "exportHandler", sessionID, err)
		return
	}
	if !session.State.Completed {
		writeJSONResponse(w, http.StatusConflict, models.Error("Dialogue is not completed yet"))
		return
	}

	form, err := s.forms.Get(session.State.FormType)
	if err != nil {
		slog.Error("Server.exportHandler: form lookup failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Form schema unavailable"))
		return
	}

	export := pdffill.BuildExport(form, &session.State)
	slog.Info("Server.exportHandler: export built", "sessionID", sessionID, "form", form.Key)
	writeJSONResponse(w, http.StatusOK, models.Success(export))
}

// writeDialogueError maps session errors onto HTTP statuses.
func (s *Server) writeDialogueError(w http.ResponseWriter, handler, sessionID string, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Dialogue not found"))
	case errors.Is(err, models.ErrDialogueCompleted):
		writeJSONResponse(w, http.StatusConflict, models.Error("Dialogue is already completed"))
	case errors.Is(err, dialogue.ErrNoDocumentExpected):
		writeJSONResponse(w, http.StatusConflict, models.Error("No document expected in the current dialogue phase"))
	default:
		slog.Error("Server."+handler+": request failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
