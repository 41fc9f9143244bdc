package invoices

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperflow/paperflow/internal/users"
	_ "github.com/paperflow/paperflow/testing"
)

func newTestRouter(f *fixture) http.Handler {
	handler := NewHandler(slog.Default(), f.service)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return r
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(users.ContextWithUser(req.Context(), users.User{ID: userID, Email: "u@test.example"}))
}

func TestProcessEndpointCreatesInvoice(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/process",
		strings.NewReader(`{"file_url": "https://files.test/inv.pdf"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Invoice struct {
			InvoiceNumber string `json:"invoice_number"`
			InvoiceStatus string `json:"invoice_status"`
		} `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INV-2031", resp.Invoice.InvoiceNumber)
	assert.Equal(t, "Approved", resp.Invoice.InvoiceStatus)
}

func TestProcessEndpointRejectsMissingURL(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/process", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessEndpointRequiresUser(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/process",
		strings.NewReader(`{"file_url": "https://files.test/inv.pdf"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProcessEndpointDuplicateConflict(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	seedInvoice(t, f, StatusApproved)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/process",
		strings.NewReader(`{"file_url": "https://files.test/inv.pdf"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusEndpointInvalidTarget(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	saved := seedInvoice(t, f, StatusPending)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPatch, "/api/invoices/"+saved.ID.String()+"/status",
		strings.NewReader(`{"status": "Flagged"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpointApproves(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	saved := seedInvoice(t, f, StatusPending)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPatch, "/api/invoices/"+saved.ID.String()+"/status",
		strings.NewReader(`{"status": "Approved"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Approved", resp.InvoiceStatus)
}

func TestAuditEndpointListsTrail(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	saved := seedInvoice(t, f, StatusPending)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPatch, "/api/invoices/"+saved.ID.String()+"/status",
		strings.NewReader(`{"status": "Approved"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/invoices/"+saved.ID.String()+"/audit", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []struct {
			Action string `json:"action"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "invoice.status_changed", resp.Entries[0].Action)
}

func TestGetEndpointNotFound(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpointFiltersByStatus(t *testing.T) {
	f := newFixture(t, sampleInvoice(90))
	seedInvoice(t, f, StatusPending)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices?status=Pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req, f.userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Invoices []invoiceResponse `json:"invoices"`
		Total    int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}
