package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/sciencebuddy/internal/auth"
	"github.com/ashureev/sciencebuddy/internal/domain"
	"github.com/ashureev/sciencebuddy/internal/logsink"
	"github.com/ashureev/sciencebuddy/internal/store"
)

type loginRequest struct {
	TeacherID string `json:"teacher_id"`
	Password  string `json:"password"`
}

// TeacherLogin issues a teacher token.
func (h *Handler) TeacherLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := h.auth.Login(req.TeacherID, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.log.Error("Teacher login failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.TokenTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})
	JSON(w, http.StatusOK, map[string]string{"token": token})
}

// TeacherLogout revokes the teacher token.
func (h *Handler) TeacherLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(auth.TokenFromRequest(r))
	http.SetCookie(w, &http.Cookie{Name: auth.CookieName, Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

// TeacherLogs returns one day of the learning log, limited to the teacher's
// classes. Optional class, student and unit query parameters narrow it further.
func (h *Handler) TeacherLogs(w http.ResponseWriter, r *http.Request) {
	teacherID, _ := auth.TeacherFromContext(r.Context())
	q := r.URL.Query()

	day := q.Get("day")
	if day == "" {
		day = logsink.DayKey(time.Now())
	}

	entries := []domain.LogEntry{}
	for _, e := range h.logs.LoadDay(r.Context(), day) {
		if !h.auth.CanView(teacherID, e.ClassNumber) {
			continue
		}
		if !matches(q.Get("class"), e.ClassNumber) || !matches(q.Get("student"), e.StudentNumber) || !matches(q.Get("unit"), e.Unit) {
			continue
		}
		entries = append(entries, e)
	}
	JSON(w, http.StatusOK, map[string]any{"day": day, "entries": entries})
}

// TeacherDays lists the days that have learning logs, newest first.
func (h *Handler) TeacherDays(w http.ResponseWriter, r *http.Request) {
	days, err := h.logs.Days(r.Context())
	if err != nil {
		h.log.Error("Failed to list log days", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list days")
		return
	}
	if days == nil {
		days = []string{}
	}
	JSON(w, http.StatusOK, map[string][]string{"days": days})
}

// TeacherProgress lists stored progress for the teacher's classes.
func (h *Handler) TeacherProgress(w http.ResponseWriter, r *http.Request) {
	teacherID, _ := auth.TeacherFromContext(r.Context())
	records, err := h.progress.List(r.Context())
	if err != nil {
		h.log.Error("Failed to list progress", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list progress")
		return
	}

	q := r.URL.Query()
	out := []store.Record{}
	for _, rec := range records {
		if !h.auth.CanView(teacherID, rec.Identity.ClassNumber) {
			continue
		}
		if !matches(q.Get("class"), rec.Identity.ClassNumber) || !matches(q.Get("unit"), rec.Unit) {
			continue
		}
		out = append(out, rec)
	}
	JSON(w, http.StatusOK, map[string]any{"records": out})
}

func matches(filter, value string) bool {
	return filter == "" || filter == value
}
