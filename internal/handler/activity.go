package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/templui/stravasync/internal/ctxkeys"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/service"
)

type ActivityHandler struct {
	activityService *service.ActivityService
	syncService     *service.SyncService
	mockService     *service.MockService
}

func NewActivityHandler(
	activityService *service.ActivityService,
	syncService *service.SyncService,
	mockService *service.MockService,
) *ActivityHandler {
	return &ActivityHandler{
		activityService: activityService,
		syncService:     syncService,
		mockService:     mockService,
	}
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	activities, err := h.activityService.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, activities)
}

func (h *ActivityHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var edit model.ActivityEdit
	if err := decodeJSON(r, &edit); err != nil {
		writeError(w, r, err)
		return
	}

	activity, err := h.activityService.Update(r.Context(), user.ID, r.PathValue("id"), edit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, activity)
}

func (h *ActivityHandler) Sync(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	result, err := h.syncService.SyncActivities(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ActivityHandler) SyncPhotos(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	result, err := h.syncService.SyncPhotos(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type mockRequest struct {
	Count int `json:"count"`
}

// GenerateMock accepts the count as JSON body or query parameter.
func (h *ActivityHandler) GenerateMock(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req mockRequest
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: count must be a number", service.ErrInvalidInput))
			return
		}
		req.Count = n
	} else if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	activities, err := h.mockService.Generate(r.Context(), user.ID, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"count":      len(activities),
		"activities": activities,
	})
}

func (h *ActivityHandler) DeleteMock(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	result, err := h.mockService.DeleteMock(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": result.Activities, "photos": result.Photos})
}

// DeleteAll requires confirm=true so a stray request cannot wipe synced data.
func (h *ActivityHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, r, fmt.Errorf("%w: confirm=true is required", service.ErrInvalidInput))
		return
	}

	result, err := h.mockService.DeleteAll(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": result.Activities, "photos": result.Photos})
}
