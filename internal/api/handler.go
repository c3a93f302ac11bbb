// Package api provides HTTP handlers for the ai-dvisor plan document
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daniel-c5656/ai-dvisor/internal/catalog"
	"github.com/daniel-c5656/ai-dvisor/internal/docstore"
	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// defaultMaxRequestBodySize caps partial-update bodies (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler serves the plan document API.
type Handler struct {
	repo    docstore.Repository
	hub     *WatchHub
	catalog *catalog.Client
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(repo docstore.Repository, hub *WatchHub, cat *catalog.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, hub: hub, catalog: cat, logger: logger}
}

// RegisterRoutes attaches all plan document routes to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/plan", h.GetPlan)
	r.Post("/plan/create", h.CreatePlan)
	r.Get("/plan/list", h.ListPlans)
	r.Delete("/plan", h.DeletePlan)
	r.Post("/plan/add", h.AddSection)
	r.Delete("/plan/delete", h.RemoveSection)
	r.Post("/plan/update", h.UpdatePlan)
	r.Get("/ws/plan", h.WatchPlan)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// planParams extracts the user and plan ids every document route requires.
func planParams(w http.ResponseWriter, r *http.Request) (userID, planID string, ok bool) {
	userID = r.URL.Query().Get("user_id")
	planID = r.URL.Query().Get("plan_id")
	if userID == "" || planID == "" {
		Error(w, http.StatusBadRequest, "user_id and plan_id are required")
		return "", "", false
	}
	return userID, planID, true
}

// GetPlan returns one plan document.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	userID, planID, ok := planParams(w, r)
	if !ok {
		return
	}
	snap, _, err := h.repo.GetPlan(r.Context(), userID, planID)
	if errors.Is(err, docstore.ErrNotFound) {
		Error(w, http.StatusNotFound, "user or plan does not exist")
		return
	}
	if err != nil {
		h.logger.Error("get plan failed", "user_id", userID, "plan_id", planID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load plan")
		return
	}
	JSON(w, http.StatusOK, snap)
}

// CreatePlan creates an empty plan document and returns its id. The new
// document deliberately has no courses, chat_history, or sessionId fields.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	title := r.URL.Query().Get("title")
	if userID == "" || title == "" {
		Error(w, http.StatusBadRequest, "user_id and title are required")
		return
	}
	planID, err := h.repo.CreatePlan(r.Context(), userID, title)
	if err != nil {
		h.logger.Error("create plan failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create plan")
		return
	}
	h.logger.Info("plan created", "user_id", userID, "plan_id", planID)
	JSON(w, http.StatusOK, map[string]string{"id": planID})
}

// ListPlans returns plan summaries for the dashboard.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	summaries, err := h.repo.ListPlans(r.Context(), userID)
	if err != nil {
		h.logger.Error("list plans failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	JSON(w, http.StatusOK, summaries)
}

// DeletePlan removes a plan document and notifies its watchers.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	userID, planID, ok := planParams(w, r)
	if !ok {
		return
	}
	unlock := h.hub.LockPlan(userID, planID)
	defer unlock()

	err := h.repo.DeletePlan(r.Context(), userID, planID)
	if errors.Is(err, docstore.ErrNotFound) {
		Error(w, http.StatusNotFound, "user or plan does not exist")
		return
	}
	if err != nil {
		h.logger.Error("delete plan failed", "user_id", userID, "plan_id", planID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete plan")
		return
	}
	h.hub.PublishGone(userID, planID)
	h.logger.Info("plan deleted", "user_id", userID, "plan_id", planID)
	JSON(w, http.StatusOK, map[string]string{})
}

// AddSection looks a section up in the catalog and appends it to the plan.
func (h *Handler) AddSection(w http.ResponseWriter, r *http.Request) {
	userID, planID, ok := planParams(w, r)
	if !ok {
		return
	}
	termCode := r.URL.Query().Get("term_code")
	courseCode := r.URL.Query().Get("course_code")
	sectionID := r.URL.Query().Get("section_id")
	if termCode == "" || courseCode == "" || sectionID == "" {
		Error(w, http.StatusBadRequest, "term_code, course_code and section_id are required")
		return
	}

	section, err := h.catalog.FindSection(r.Context(), termCode, courseCode, sectionID)
	if errors.Is(err, catalog.ErrNotFound) {
		Error(w, http.StatusNotFound, "the given term, course, or section does not exist")
		return
	}
	if err != nil {
		h.logger.Error("catalog lookup failed", "course_code", courseCode, "section_id", sectionID, "error", err)
		Error(w, http.StatusBadGateway, "catalog lookup failed")
		return
	}
	// Catalog data goes through the same section invariants as update bodies.
	if err := section.Validate(); err != nil {
		h.logger.Error("catalog returned invalid section", "course_code", courseCode, "section_id", sectionID, "error", err)
		Error(w, http.StatusBadGateway, "catalog returned an unusable section")
		return
	}

	unlock := h.hub.LockPlan(userID, planID)
	defer unlock()

	snap, _, err := h.repo.GetPlan(r.Context(), userID, planID)
	if errors.Is(err, docstore.ErrNotFound) {
		Error(w, http.StatusNotFound, "user or plan does not exist")
		return
	}
	if err != nil {
		h.logger.Error("get plan failed", "user_id", userID, "plan_id", planID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load plan")
		return
	}
	for _, existing := range snap.Courses {
		if existing.SectionID == sectionID {
			Error(w, http.StatusConflict, "section is already in the plan")
			return
		}
	}

	courses := append(snap.Courses, section)
	if _, err := h.commitLocked(r.Context(), userID, planID, plan.Update{Courses: &courses}); err != nil {
		Error(w, http.StatusInternalServerError, "failed to update plan")
		return
	}
	JSON(w, http.StatusOK, map[string]string{})
}

// RemoveSection removes a section from the plan by section id. Removing a
// section that is not in the plan leaves the document untouched.
func (h *Handler) RemoveSection(w http.ResponseWriter, r *http.Request) {
	userID, planID, ok := planParams(w, r)
	if !ok {
		return
	}
	sectionID := r.URL.Query().Get("section_id")
	if sectionID == "" {
		Error(w, http.StatusBadRequest, "section_id is required")
		return
	}

	unlock := h.hub.LockPlan(userID, planID)
	defer unlock()

	snap, _, err := h.repo.GetPlan(r.Context(), userID, planID)
	if errors.Is(err, docstore.ErrNotFound) {
		Error(w, http.StatusNotFound, "user or plan does not exist")
		return
	}
	if err != nil {
		h.logger.Error("get plan failed", "user_id", userID, "plan_id", planID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load plan")
		return
	}

	courses := make([]plan.CourseSection, 0, len(snap.Courses))
	for _, section := range snap.Courses {
		if section.SectionID != sectionID {
			courses = append(courses, section)
		}
	}
	if len(courses) == len(snap.Courses) {
		JSON(w, http.StatusOK, map[string]string{})
		return
	}

	if _, err := h.commitLocked(r.Context(), userID, planID, plan.Update{Courses: &courses}); err != nil {
		Error(w, http.StatusInternalServerError, "failed to update plan")
		return
	}
	JSON(w, http.StatusOK, map[string]string{})
}

// UpdatePlan applies a partial update from the request body.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	userID, planID, ok := planParams(w, r)
	if !ok {
		return
	}

	var upd plan.Update
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize))
	if err := decoder.Decode(&upd); err != nil {
		Error(w, http.StatusBadRequest, "invalid update body")
		return
	}
	if upd.IsZero() {
		Error(w, http.StatusBadRequest, "update changes nothing")
		return
	}
	if upd.Courses != nil {
		for i := range *upd.Courses {
			if err := (*upd.Courses)[i].Validate(); err != nil {
				Error(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	unlock := h.hub.LockPlan(userID, planID)
	defer unlock()

	snap, err := h.commitLocked(r.Context(), userID, planID, upd)
	if errors.Is(err, docstore.ErrNotFound) {
		Error(w, http.StatusNotFound, "user or plan does not exist")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to update plan")
		return
	}
	JSON(w, http.StatusOK, snap)
}

// commitLocked applies an update and publishes the committed document to
// watchers. The caller must hold the plan lock.
func (h *Handler) commitLocked(ctx context.Context, userID, planID string, upd plan.Update) (plan.Snapshot, error) {
	snap, rev, err := h.repo.UpdatePlan(ctx, userID, planID, upd)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			h.logger.Error("update plan failed", "user_id", userID, "plan_id", planID, "error", err)
		}
		return plan.Snapshot{}, err
	}
	h.hub.Publish(userID, planID, snap, rev)
	return snap, nil
}
