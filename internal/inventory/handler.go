package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paperflow/paperflow/internal/platform/httpx"
	"github.com/paperflow/paperflow/internal/users"
)

// Handler exposes inventory management over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the inventory endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/inventory", h.List)
	r.Post("/inventory", h.Create)
	r.Get("/inventory/shortages", h.ListShortages)
	r.Get("/inventory/{sku}", h.Get)
	r.Put("/inventory/{sku}", h.Update)
	r.Delete("/inventory/{sku}", h.Delete)
}

type createItemRequest struct {
	SKU           string  `json:"sku" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Quantity      int64   `json:"quantity" validate:"gte=0"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0"`
	SupplierEmail string  `json:"supplier_email" validate:"omitempty,email"`
}

type updateItemRequest struct {
	Name          string  `json:"name" validate:"required"`
	Quantity      int64   `json:"quantity" validate:"gte=0"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0"`
	SupplierEmail string  `json:"supplier_email" validate:"omitempty,email"`
}

type shortageResponse struct {
	Expected   int64  `json:"expected"`
	Actual     int64  `json:"actual"`
	Gap        int64  `json:"gap"`
	Impact     string `json:"impact"`
	RecordedAt string `json:"recorded_at"`
}

type itemResponse struct {
	SKU           string            `json:"sku"`
	Name          string            `json:"name"`
	Quantity      int64             `json:"quantity"`
	UnitPrice     float64           `json:"unit_price"`
	SupplierEmail string            `json:"supplier_email,omitempty"`
	Shortage      *shortageResponse `json:"shortage,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// List returns the user's inventory.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	filter := ListFilter{Search: r.URL.Query().Get("search"), Limit: 50}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	items, total, err := h.service.List(r.Context(), user.ID, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

// Get returns one item by sku.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	item, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "sku"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

// Create stores a new item.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	item, err := h.service.Create(r.Context(), Item{
		UserID:        user.ID,
		SKU:           req.SKU,
		Name:          req.Name,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		SupplierEmail: req.SupplierEmail,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

// Update replaces mutable fields of an item.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	err := h.service.Update(r.Context(), Item{
		UserID:        user.ID,
		SKU:           chi.URLParam(r, "sku"),
		Name:          req.Name,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		SupplierEmail: req.SupplierEmail,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	item, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "sku"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

// Delete removes an item.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, chi.URLParam(r, "sku")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListShortages returns items with a recorded shortage snapshot.
func (h *Handler) ListShortages(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	items, err := h.service.ListShortages(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateSKU):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrInvalidQuantity):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toItemResponse(item Item) itemResponse {
	out := itemResponse{
		SKU:           item.SKU,
		Name:          item.Name,
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
		SupplierEmail: item.SupplierEmail,
		CreatedAt:     item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.Format(time.RFC3339),
	}
	if item.Shortage != nil {
		out.Shortage = &shortageResponse{
			Expected:   item.Shortage.Expected,
			Actual:     item.Shortage.Actual,
			Gap:        item.Shortage.Gap,
			Impact:     string(item.Shortage.Impact),
			RecordedAt: item.Shortage.RecordedAt.Format(time.RFC3339),
		}
	}
	return out
}
