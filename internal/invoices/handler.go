package invoices

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/paperflow/paperflow/internal/extract"
	"github.com/paperflow/paperflow/internal/platform/httpx"
	"github.com/paperflow/paperflow/internal/users"
)

// Handler exposes the invoice workflow over HTTP.
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

// RegisterRoutes mounts the invoice endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/invoices/process", h.Process)
	r.Get("/invoices", h.List)
	r.Get("/invoices/{id}", h.Get)
	r.Get("/invoices/{id}/audit", h.AuditTrail)
	r.Patch("/invoices/{id}/status", h.UpdateStatus)
}

type processRequest struct {
	FileURL string `json:"file_url" validate:"required,url"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type lineItemResponse struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

type invoiceResponse struct {
	ID              string             `json:"id"`
	InvoiceNumber   string             `json:"invoice_number"`
	Date            string             `json:"date,omitempty"`
	CustomerName    string             `json:"customer_name,omitempty"`
	CustomerEmail   string             `json:"customer_email,omitempty"`
	Amount          float64            `json:"amount"`
	Tax             float64            `json:"tax"`
	Total           float64            `json:"total"`
	NumberOfUnits   int64              `json:"number_of_units"`
	Confidence      string             `json:"confidence"`
	ConfidenceScore int                `json:"confidence_score"`
	LineItems       []lineItemResponse `json:"line_items"`
	PaymentMethod   string             `json:"payment_method"`
	PaymentStatus   string             `json:"payment_status"`
	InvoiceStatus   string             `json:"invoice_status"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

type processResponse struct {
	Invoice     invoiceResponse `json:"invoice"`
	UnknownSKUs []string        `json:"unknown_skus,omitempty"`
	ShortSKUs   []string        `json:"short_skus,omitempty"`
}

// Process runs the automatic pipeline for an uploaded document URL.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.ProcessFromPDF(r.Context(), user.ID, req.FileURL)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := processResponse{Invoice: toResponse(result.Invoice), UnknownSKUs: result.UnknownSKUs}
	for _, sf := range result.Shortfalls {
		resp.ShortSKUs = append(resp.ShortSKUs, sf.SKU)
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

// List returns the user's invoices, optionally filtered by status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	filter := ListFilter{Limit: 50}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		filter.Status = &status
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	invoices, total, err := h.service.List(r.Context(), user.ID, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": items, "total": total})
}

// Get returns one invoice by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invoice id must be a uuid")
		return
	}

	inv, err := h.service.Get(r.Context(), user.ID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(inv))
}

type auditEntryResponse struct {
	ActorID string         `json:"actor_id"`
	Action  string         `json:"action"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      string         `json:"at"`
}

// AuditTrail returns the workflow history of one invoice.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invoice id must be a uuid")
		return
	}

	logs, err := h.service.AuditTrail(r.Context(), user.ID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	entries := make([]auditEntryResponse, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, auditEntryResponse{
			ActorID: l.ActorID.String(),
			Action:  l.Action,
			Meta:    l.Meta,
			At:      l.At.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// UpdateStatus applies a manual approve or reject decision.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := users.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invoice id must be a uuid")
		return
	}

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.UpdateStatus(r.Context(), user.ID, id, Status(req.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateInvoice):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrInsufficientInventory), errors.Is(err, ErrStatusConflict):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, extract.ErrParse):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, extract.ErrFetch), errors.Is(err, ErrExtraction):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUpstream, err))
	default:
		h.logger.Error("invoice request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toResponse(inv Invoice) invoiceResponse {
	lines := make([]lineItemResponse, 0, len(inv.LineItems))
	for _, li := range inv.LineItems {
		lines = append(lines, lineItemResponse{
			SKU: li.SKU, Name: li.Name, Quantity: li.Quantity, UnitPrice: li.UnitPrice, Total: li.Total,
		})
	}
	return invoiceResponse{
		ID:              inv.ID.String(),
		InvoiceNumber:   inv.Number,
		Date:            inv.Date,
		CustomerName:    inv.Customer.Name,
		CustomerEmail:   inv.Customer.Email,
		Amount:          inv.Amount,
		Tax:             inv.Tax,
		Total:           inv.Total,
		NumberOfUnits:   inv.NumberOfUnits,
		Confidence:      string(inv.Confidence),
		ConfidenceScore: inv.ConfidenceScore,
		LineItems:       lines,
		PaymentMethod:   inv.PaymentMethod,
		PaymentStatus:   inv.PaymentStatus,
		InvoiceStatus:   string(inv.Status),
		Notes:           inv.Notes,
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       inv.UpdatedAt.Format(time.RFC3339),
	}
}
