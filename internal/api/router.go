package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeventeLantos/scheduled-messaging/internal/logger"
)

const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

func Router(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/v1/health", h.Health)

	r.Get("/v1/scheduler/status", h.SchedulerStatus)
	r.Post("/v1/scheduler/start", h.SchedulerStart)
	r.Post("/v1/scheduler/stop", h.SchedulerStop)

	r.Get("/v1/messages/sent", h.ListSentMessages)

	r.Group(func(r chi.Router) {
		r.Use(requireOwner)

		r.Post("/v1/messages", h.CreateMessage)
		r.Get("/v1/messages/pending", h.ListPending)
		r.Get("/v1/recipients/{recipientID}/messages", h.RecipientHistory)

		r.Route("/v1/messages/{id}", func(r chi.Router) {
			r.Get("/", h.GetMessage)
			r.Put("/", h.EditDraft)
			r.Post("/submit", h.Submit)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Post("/send", h.Send)
			r.Post("/cancel", h.Cancel)
			r.Post("/deliver", h.Deliver)
			r.Patch("/schedule", h.Reschedule)
		})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("scheduled-messaging"))
	})

	return r
}

// requestContext copies the chi request id into the logging context.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := uuid.Parse(r.Header.Get(OwnerHeader))
		if err != nil || owner == uuid.Nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing or invalid "+OwnerHeader+" header"))
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		ctx = logger.WithOwnerID(ctx, owner.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(r *http.Request) uuid.UUID {
	owner, _ := r.Context().Value(ownerKey{}).(uuid.UUID)
	return owner
}
