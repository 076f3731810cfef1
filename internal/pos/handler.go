package pos

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tokoku/pos-core/internal/platform/httpx"
)

// IdempotencyHeader carries the client-chosen key for safe resubmission.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes transaction endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the transaction handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.create)
	r.Get("/transactions/{id}", h.get)
	r.Delete("/transactions/{id}", h.delete)
	r.Get("/shifts/{id}/transactions", h.listByShift)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	input.ActorID = httpx.Actor(r)
	t, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	get := h.service.GetWithLines
	if r.URL.Query().Get("lines") == "false" {
		get = h.service.Get
	}
	t, err := get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.service.Delete(r.Context(), id, httpx.Actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listByShift(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.service.ListByShift(r.Context(), id, httpx.QueryBool(r, "include_deleted"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("transaction request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
