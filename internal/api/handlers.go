package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/logger"
	"github.com/LeventeLantos/scheduled-messaging/internal/model"
	"github.com/LeventeLantos/scheduled-messaging/internal/phone"
	"github.com/LeventeLantos/scheduled-messaging/internal/scheduler"
	"github.com/LeventeLantos/scheduled-messaging/internal/service"
)

type Scheduler interface {
	Start() bool
	Stop() bool
	IsRunning() bool
	Status() scheduler.Status
}

type Messages interface {
	CreateDraft(ctx context.Context, req service.DraftRequest) (model.Message, error)
	EditDraft(ctx context.Context, ownerID, id uuid.UUID, content string) (model.Message, error)
	RequestApproval(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error)
	Approve(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error)
	Reject(ctx context.Context, ownerID, id uuid.UUID, reason string) (model.Message, error)
	SendOrSchedule(ctx context.Context, ownerID, id uuid.UUID, req service.SendRequest) (model.Message, error)
	SendApproved(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error)
	Cancel(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error)
	EditScheduled(ctx context.Context, ownerID, id uuid.UUID, req service.SendRequest) (model.Message, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (model.Message, error)
	ListPending(ctx context.Context, ownerID uuid.UUID) ([]model.Message, error)
	History(ctx context.Context, ownerID, recipientID uuid.UUID, limit int) ([]model.Message, error)
	ListSent(ctx context.Context, limit, offset int) ([]model.Message, error)
}

type Handler struct {
	sched Scheduler
	msgs  Messages
	log   *zap.Logger
}

func NewHandler(s Scheduler, m Messages, log *zap.Logger) *Handler {
	return &Handler{sched: s, msgs: m, log: log}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) ListSentMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.msgs.ListSent(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createRequest struct {
	RecipientID       uuid.UUID         `json:"recipientId"`
	MessageType       string            `json:"messageType"`
	Content           string            `json:"content"`
	Context           map[string]string `json:"context"`
	TemplateVariables map[string]string `json:"templateVariables"`
	Channel           string            `json:"channel"`
	RecipientPhone    string            `json:"recipientPhone"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.msgs.CreateDraft(r.Context(), service.DraftRequest{
		OwnerID:           ownerFrom(r),
		RecipientID:       req.RecipientID,
		MessageType:       req.MessageType,
		Content:           req.Content,
		Context:           req.Context,
		TemplateVariables: req.TemplateVariables,
		Channel:           req.Channel,
		RecipientPhone:    req.RecipientPhone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.Get(r.Context(), owner, id)
	})
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.msgs.ListPending(r.Context(), ownerFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) RecipientHistory(w http.ResponseWriter, r *http.Request) {
	recipientID, err := uuid.Parse(chi.URLParam(r, "recipientID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid recipient id"))
		return
	}

	items, err := h.msgs.History(r.Context(), ownerFrom(r), recipientID, parseInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type editRequest struct {
	Content string `json:"content"`
}

func (h *Handler) EditDraft(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.EditDraft(r.Context(), owner, id, req.Content)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.RequestApproval(r.Context(), owner, id)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.Approve(r.Context(), owner, id)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.Reject(r.Context(), owner, id, req.Reason)
	})
}

type sendRequest struct {
	Content        *string          `json:"content"`
	RecipientPhone *string          `json:"recipientPhone"`
	SendAt         *model.Timestamp `json:"sendAt"`
}

func (s sendRequest) toService() service.SendRequest {
	return service.SendRequest{
		Content:        s.Content,
		RecipientPhone: s.RecipientPhone,
		SendAt:         s.SendAt.Ptr(),
	}
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.SendOrSchedule(r.Context(), owner, id, req.toService())
	})
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.EditScheduled(r.Context(), owner, id, req.toService())
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.Cancel(r.Context(), owner, id)
	})
}

func (h *Handler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(owner, id uuid.UUID) (model.Message, error) {
		return h.msgs.SendApproved(r.Context(), owner, id)
	})
}

func (h *Handler) withID(w http.ResponseWriter, r *http.Request, fn func(owner, id uuid.UUID) (model.Message, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid message id"))
		return
	}

	m, err := fn(ownerFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.With(r.Context(), h.log).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, phone.ErrInvalidPhoneNumber),
		errors.Is(err, service.ErrMissingRecipient),
		errors.Is(err, service.ErrContentTooLong),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrNoGenerator),
		errors.Is(err, channel.ErrUnknownChannel):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// decodeOptional accepts a missing body, chunked or not.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
	return false
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
