package api

import (
	"net/http"
	"strings"

	"github.com/ashureev/sciencebuddy/internal/domain"
	"github.com/ashureev/sciencebuddy/internal/identity"
	"github.com/ashureev/sciencebuddy/internal/session"
)

const sessionTakenOverNotice = "ほかの端末で使われていた学習を終了しました。"

type sessionRequest struct {
	ClassNumber   string `json:"class_number"`
	StudentNumber string `json:"student_number"`
}

type sessionResponse struct {
	Token         string `json:"token"`
	ClassNumber   string `json:"class_number"`
	StudentNumber string `json:"student_number"`
	Notice        string `json:"notice,omitempty"`
}

// CreateSession starts (or refreshes) the learner's session on this device.
// A session held by another device is ended and the response carries a notice.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := domain.NewLearnerIdentity(req.ClassNumber, req.StudentNumber)
	if err != nil {
		Error(w, http.StatusBadRequest, "class_number and student_number must be numbers")
		return
	}

	token := identity.TokenFromRequest(r)
	if token == "" || h.guard.Evicted(token) {
		token = session.NewToken()
	}
	res := h.guard.CheckAndRegister(id, token, identity.FingerprintFromRequest(r))
	identity.SetSessionCookie(w, token, h.isDev)

	resp := sessionResponse{
		Token:         token,
		ClassNumber:   id.ClassNumber,
		StudentNumber: id.StudentNumber,
	}
	if res.Conflict {
		resp.Notice = sessionTakenOverNotice
	}
	JSON(w, http.StatusOK, resp)
}

// DeleteSession ends the learner's session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.guard.Release(identity.TokenFromContext(r.Context()))
	identity.ClearSessionCookie(w, h.isDev)
	w.WriteHeader(http.StatusNoContent)
}

// ListUnits returns the unit catalog.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string][]string{"units": h.content.Units()})
}

// Resume returns everything needed to redraw a unit.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.LearnerFromContext(r.Context())
	JSON(w, http.StatusOK, h.engine.Resume(r.Context(), id, unitFromContext(r.Context())))
}

type chatRequest struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Chat runs one learner turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid stage")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	id, _ := identity.LearnerFromContext(r.Context())
	res, err := h.engine.HandleTurn(r.Context(), id, unitFromContext(r.Context()), stage, message)
	if err != nil {
		h.writeDialogueError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

type summaryRequest struct {
	Stage string `json:"stage"`
}

// Summary generates the prediction or final summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !decode(w, r, &req) {
		return
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid stage")
		return
	}

	id, _ := identity.LearnerFromContext(r.Context())
	summary, err := h.engine.GenerateStageSummary(r.Context(), id, unitFromContext(r.Context()), stage, nil, "")
	if err != nil {
		h.writeDialogueError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// ConfirmPrediction moves the learner on to the experiment.
func (h *Handler) ConfirmPrediction(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.LearnerFromContext(r.Context())
	progress, err := h.engine.ConfirmPredictionSummary(r.Context(), id, unitFromContext(r.Context()))
	if err != nil {
		h.writeDialogueError(w, err)
		return
	}
	JSON(w, http.StatusOK, progress)
}

// CompleteExperiment marks the experiment as done.
func (h *Handler) CompleteExperiment(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.LearnerFromContext(r.Context())
	progress, err := h.engine.CompleteExperiment(r.Context(), id, unitFromContext(r.Context()))
	if err != nil {
		h.writeDialogueError(w, err)
		return
	}
	JSON(w, http.StatusOK, progress)
}

// EnterReflection opens the reflection stage.
func (h *Handler) EnterReflection(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.LearnerFromContext(r.Context())
	progress, err := h.engine.EnterReflection(r.Context(), id, unitFromContext(r.Context()))
	if err != nil {
		h.writeDialogueError(w, err)
		return
	}
	JSON(w, http.StatusOK, progress)
}
