package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/evaluator"
	"github.com/lalithlochan/beacon/internal/inapp"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/sqs"
	"github.com/lalithlochan/beacon/internal/surface"
)

// Engine is the in-app controller as the debug API drives it.
type Engine interface {
	ShowNext(ctx context.Context)
	OnAppLaunch(ctx context.Context) error
	OnEvent(ctx context.Context, name string, props map[string]any) error
	OnChargedEvent(ctx context.Context, details map[string]any, items []map[string]any) error
	OnProfileChange(ctx context.Context, changes map[string]evaluator.ProfileChange) error
	Suspend()
	Discard()
	Resume(ctx context.Context)
	Status(ctx context.Context) (inapp.Status, error)
}

// Feed applies a server feed message.
type Feed interface {
	Apply(ctx context.Context, msg *sqs.FeedMessage) error
}

// Display is the surface showing in-apps.
type Display interface {
	Dismiss(formData map[string]any) error
	Click(index int) (map[string]string, error)
}

// Device is the simulated host device.
type Device interface {
	State() surface.DeviceState
	Update(u surface.DeviceUpdate) surface.DeviceState
}

// Session is reset on every app launch.
type Session interface {
	ResetSession()
}

// Sessions resets several sessions together.
type Sessions []Session

func (s Sessions) ResetSession() {
	for _, session := range s {
		session.ResetSession()
	}
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// EventRequest is the body of POST /v1/events
type EventRequest struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// ChargedRequest is the body of POST /v1/events/charged
type ChargedRequest struct {
	Details map[string]any   `json:"details"`
	Items   []map[string]any `json:"items"`
}

// ProfileRequest is the body of POST /v1/profile
type ProfileRequest struct {
	Changes map[string]struct {
		Old any `json:"old"`
		New any `json:"new"`
	} `json:"changes"`
}

// DismissRequest is the body of POST /v1/displaying/dismiss
type DismissRequest struct {
	FormData map[string]any `json:"form_data"`
}

// DisplayingResponse describes the in-app on screen.
type DisplayingResponse struct {
	ID         string   `json:"id"`
	CampaignID string   `json:"campaign_id"`
	InAppType  string   `json:"inapp_type"`
	Title      string   `json:"title,omitempty"`
	Message    string   `json:"message,omitempty"`
	Buttons    []string `json:"buttons,omitempty"`
}

// StateResponse is returned by GET /v1/state
type StateResponse struct {
	State      string              `json:"state"`
	Displaying *DisplayingResponse `json:"displaying"`
	Queued     int                 `json:"queued"`
	Backlog    int                 `json:"backlog"`
	Device     surface.DeviceState `json:"device"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger  *zap.Logger
	engine  Engine
	feed    Feed
	display Display
	device  Device
	session Session
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, engine Engine, feed Feed, display Display, device Device, session Session) *Handler {
	return &Handler{
		logger:  logger,
		engine:  engine,
		feed:    feed,
		display: display,
		device:  device,
		session: session,
	}
}

// Register mounts the handlers on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/inapps", h.PushInApps)
	r.Post("/events", h.RecordEvent)
	r.Post("/events/charged", h.RecordCharged)
	r.Post("/profile", h.UpdateProfile)
	r.Post("/app-launch", h.AppLaunch)
	r.Post("/lifecycle/{state}", h.SetLifecycle)
	r.Get("/state", h.GetState)
	r.Post("/displaying/dismiss", h.DismissDisplaying)
	r.Post("/displaying/actions/{index}", h.ClickDisplaying)
	r.Post("/foreground", h.UpdateDevice)
}

// PushInApps handles POST /v1/inapps
// The body has the same shape as a server feed message.
func (h *Handler) PushInApps(w http.ResponseWriter, r *http.Request) {
	var msg sqs.FeedMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if len(msg.InApps) == 0 && msg.ClientSide == nil && len(msg.AppLaunchServerSide) == 0 &&
		msg.MaxPerSession == nil && msg.MaxPerDay == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Empty feed message", "")
		return
	}

	if err := h.feed.Apply(r.Context(), &msg); err != nil {
		h.logger.Error("failed to apply pushed in-apps", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to queue in-apps", "")
		return
	}

	h.logger.Info("in-apps pushed",
		zap.Int("inapps", len(msg.InApps)),
		zap.Int("client_side", len(msg.ClientSide)),
		zap.Int("app_launch_server_side", len(msg.AppLaunchServerSide)),
	)
	h.writeAccepted(w)
}

// RecordEvent handles POST /v1/events
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name is required")
		return
	}

	if err := h.engine.OnEvent(r.Context(), req.Name, req.Properties); err != nil {
		h.logger.Error("failed to evaluate event", zap.Error(err), zap.String("event", req.Name))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to queue in-apps", "")
		return
	}
	h.writeAccepted(w)
}

// RecordCharged handles POST /v1/events/charged
func (h *Handler) RecordCharged(w http.ResponseWriter, r *http.Request) {
	var req ChargedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if err := h.engine.OnChargedEvent(r.Context(), req.Details, req.Items); err != nil {
		h.logger.Error("failed to evaluate charged event", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to queue in-apps", "")
		return
	}
	h.writeAccepted(w)
}

// UpdateProfile handles POST /v1/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if len(req.Changes) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "changes is required")
		return
	}

	changes := make(map[string]evaluator.ProfileChange, len(req.Changes))
	for attr, c := range req.Changes {
		changes[attr] = evaluator.ProfileChange{Old: c.Old, New: c.New}
	}
	if err := h.engine.OnProfileChange(r.Context(), changes); err != nil {
		h.logger.Error("failed to evaluate profile change", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to queue in-apps", "")
		return
	}
	h.writeAccepted(w)
}

// AppLaunch handles POST /v1/app-launch
// A launch starts a new session before evaluating.
func (h *Handler) AppLaunch(w http.ResponseWriter, r *http.Request) {
	if h.session != nil {
		h.session.ResetSession()
	}
	if err := h.engine.OnAppLaunch(r.Context()); err != nil {
		h.logger.Error("failed to evaluate app launch", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to queue in-apps", "")
		return
	}
	h.writeAccepted(w)
}

// SetLifecycle handles POST /v1/lifecycle/{state}
func (h *Handler) SetLifecycle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "state")
	state, ok := inapp.ParseState(name)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid state",
			"state must be resumed, suspended, or discarded")
		return
	}

	switch state {
	case inapp.StateSuspended:
		h.engine.Suspend()
	case inapp.StateDiscarded:
		h.engine.Discard()
	default:
		h.engine.Resume(r.Context())
	}

	h.logger.Info("in-app lifecycle changed", zap.String("state", state.String()))
	h.writeJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

// GetState handles GET /v1/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to read engine state", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to read state", "")
		return
	}

	resp := StateResponse{
		State:   st.State.String(),
		Queued:  st.Queued,
		Backlog: st.Backlog,
		Device:  h.device.State(),
	}
	if n := st.Displaying; n != nil {
		resp.Displaying = displaying(n)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func displaying(n *notification.Notification) *DisplayingResponse {
	d := &DisplayingResponse{
		ID:         n.ID,
		CampaignID: n.CampaignID,
		InAppType:  n.InAppType.String(),
		Title:      n.Title,
		Message:    n.Message,
	}
	for _, b := range n.Buttons {
		d.Buttons = append(d.Buttons, b.Text)
	}
	return d
}

// DismissDisplaying handles POST /v1/displaying/dismiss
func (h *Handler) DismissDisplaying(w http.ResponseWriter, r *http.Request) {
	// the body is optional
	var req DismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if err := h.display.Dismiss(req.FormData); err != nil {
		h.writeDisplayError(w, err)
		return
	}
	h.writeAccepted(w)
}

// ClickDisplaying handles POST /v1/displaying/actions/{index}
func (h *Handler) ClickDisplaying(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid button index", "index must be an integer")
		return
	}

	result, err := h.display.Click(index)
	if err != nil {
		h.writeDisplayError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// UpdateDevice handles POST /v1/foreground
// Coming back to the foreground retries deferred in-apps.
func (h *Handler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	var u surface.DeviceUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	st := h.device.Update(u)
	if st.Foreground {
		h.engine.ShowNext(r.Context())
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) writeDisplayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, surface.ErrNothingShowing):
		h.writeError(w, http.StatusNotFound, "not_found", "No in-app showing", "")
	case errors.Is(err, surface.ErrNoButton):
		h.writeError(w, http.StatusNotFound, "not_found", "No such button", "")
	default:
		h.logger.Error("display action failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "display_error", "Display action failed", "")
	}
}

func (h *Handler) writeAccepted(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
