package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-transfer-reconciler/internal/lock"
	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/ocr"
	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/internal/status"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/internal/store/storetest"
	"bank-transfer-reconciler/internal/transition"
	"bank-transfer-reconciler/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

type reportBody struct {
	Matched    int `json:"matched"`
	Unmatched  int `json:"unmatched"`
	Duplicates int `json:"duplicates"`
	Details    []struct {
		Status    string `json:"status"`
		Code      string `json:"code"`
		PaymentID uint   `json:"payment_id"`
	} `json:"details"`
}

func newTestServer(t *testing.T, config *Config) (*Server, store.Repository) {
	t.Helper()
	repo, _ := storetest.New(t)
	now := func() time.Time { return fixedNow }

	engine := transition.NewEngine(repo, lock.NewLocalLocker(), &transition.Config{Now: now, Logger: logger.Discard()})
	rconfig := reconciler.DefaultConfig()
	rconfig.Now = now
	service, err := reconciler.NewReconciliationService(repo, engine, rconfig, logger.Discard())
	require.NoError(t, err)
	orchestrator, err := reconciler.NewReconciliationOrchestrator(service, ocr.NewRouter(nil), nil)
	require.NoError(t, err)

	server := NewServer(config, Dependencies{
		Engine:       engine,
		Orchestrator: orchestrator,
		Status:       status.NewService(repo, now, logger.Discard()),
		Logger:       logger.Discard(),
	})
	return server, repo
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func upload(t *testing.T, app *fiber.App, path, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGetPing(t *testing.T) {
	server, _ := newTestServer(t, nil)

	resp := doJSON(t, server.App(), http.MethodGet, "/api/v1/ping", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var pong Pong
	decode(t, resp, &pong)
	assert.Equal(t, "pong", pong.Ping)
}

func TestPostReconcileRows(t *testing.T) {
	server, repo := newTestServer(t, nil)
	user := storetest.SeedUser(t, repo, models.RoleUser)
	storetest.SeedRecord(t, repo, user.ID, models.KindProject, "MOD-1234", 150)

	body := map[string]interface{}{
		"rows": []map[string]interface{}{
			{"date": "15/03/2024", "amount": "150.00", "description": "Payment MOD-1234", "senderName": "ACME"},
			{"date": "15/03/2024", "amount": 150, "description": "Virement"},
		},
	}

	resp := doJSON(t, server.App(), http.MethodPost, "/api/v1/reconcile/rows", body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var first reportBody
	decode(t, resp, &first)
	assert.Equal(t, 1, first.Matched)
	assert.Equal(t, 1, first.Unmatched)

	resp = doJSON(t, server.App(), http.MethodPost, "/api/v1/reconcile/rows", body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var second reportBody
	decode(t, resp, &second)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, string(reconciler.StatusAlreadyProcessed), second.Details[0].Status)
}

func TestPostReconcileRowsValidation(t *testing.T) {
	server, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty rows", map[string]interface{}{"rows": []interface{}{}}},
		{"missing description", map[string]interface{}{"rows": []map[string]interface{}{{"date": "2024-03-15", "amount": 150}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, server.App(), http.MethodPost, "/api/v1/reconcile/rows", tt.body)
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			var body ErrorResponse
			decode(t, resp, &body)
			assert.Equal(t, "validation", body.Category)
		})
	}
}

func TestPostReconcileDocument(t *testing.T) {
	server, repo := newTestServer(t, nil)
	user := storetest.SeedUser(t, repo, models.RoleUser)
	record := storetest.SeedRecord(t, repo, user.ID, models.KindProject, "MOD-1234", 150)

	resp := upload(t, server.App(), "/api/v1/reconcile/document?source=statement", "statement.txt",
		"RELEVE\n15/03/2024 VIREMENT 150,00 MAD MOD-1234\n")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var report reportBody
	decode(t, resp, &report)
	assert.Equal(t, 1, report.Matched)

	stored, err := repo.GetBillingRecord(t.Context(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaid, stored.PaymentState)
}

func TestPostReconcileDocumentErrors(t *testing.T) {
	server, _ := newTestServer(t, nil)

	resp := upload(t, server.App(), "/api/v1/reconcile/document?source=fax", "a.txt", "x")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = upload(t, server.App(), "/api/v1/reconcile/document", "scan.pdf", "%PDF-1.4\n%binary")
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/document", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReceiptConfirmationFlow(t *testing.T) {
	server, repo := newTestServer(t, nil)
	user := storetest.SeedUser(t, repo, models.RoleUser)
	storetest.SeedRecord(t, repo, user.ID, models.KindSubscription, "MOD12345678", 80)

	resp := upload(t, server.App(), "/api/v1/receipts", "receipt.txt", "RECU\n15/03/2024\nMOD12345678\n80,00 MAD\n")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var report reportBody
	decode(t, resp, &report)
	require.Equal(t, 1, report.Matched)
	paymentID := report.Details[0].PaymentID
	require.NotZero(t, paymentID)

	var st status.Result
	decode(t, doJSON(t, server.App(), http.MethodGet, fmt.Sprintf("/api/v1/users/%d/status", user.ID), nil), &st)
	assert.Equal(t, status.StatusPendingVerification, st.Status)
	assert.False(t, st.NeedsPayment)

	resp = doJSON(t, server.App(), http.MethodPost, fmt.Sprintf("/api/v1/payments/%d/confirm", paymentID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var confirmed ConfirmPaymentResponse
	decode(t, resp, &confirmed)
	assert.True(t, confirmed.Advanced)
	assert.Equal(t, models.StatePaid, confirmed.Record.PaymentState)

	decode(t, doJSON(t, server.App(), http.MethodGet, fmt.Sprintf("/api/v1/users/%d/status", user.ID), nil), &st)
	assert.Equal(t, status.StatusActive, st.Status)
	assert.Equal(t, 25, st.DaysRemaining)

	resp = doJSON(t, server.App(), http.MethodPost, fmt.Sprintf("/api/v1/payments/%d/confirm", paymentID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decode(t, resp, &confirmed)
	assert.False(t, confirmed.Advanced)
}

func TestNotFoundAndBadIDs(t *testing.T) {
	server, _ := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/v1/payments/999/confirm", fiber.StatusNotFound},
		{http.MethodGet, "/api/v1/users/999/status", fiber.StatusNotFound},
		{http.MethodDelete, "/api/v1/billing-records/999", fiber.StatusNotFound},
		{http.MethodGet, "/api/v1/users/abc/status", fiber.StatusBadRequest},
		{http.MethodPost, "/api/v1/payments/0/confirm", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := doJSON(t, server.App(), tt.method, tt.path, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestBillingRecordLifecycle(t *testing.T) {
	server, repo := newTestServer(t, nil)
	user := storetest.SeedUser(t, repo, models.RoleUser)

	resp := doJSON(t, server.App(), http.MethodPost, "/api/v1/billing-records", map[string]interface{}{
		"user_id": user.ID,
		"kind":    "project",
		"price":   "2500.00",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var record models.BillingRecord
	decode(t, resp, &record)
	assert.Regexp(t, `^MOD-\d{4}$`, record.Code)
	assert.Equal(t, models.StateNotPaid, record.PaymentState)

	resp = doJSON(t, server.App(), http.MethodPost, "/api/v1/billing-records", map[string]interface{}{
		"user_id": user.ID,
		"kind":    "lifetime",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, server.App(), http.MethodDelete, fmt.Sprintf("/api/v1/billing-records/%d", record.ID), nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	_, err := repo.GetBillingRecord(t.Context(), record.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdminToken(t *testing.T) {
	config := DefaultConfig()
	config.AdminToken = "s3cret"
	server, _ := newTestServer(t, config)

	resp := doJSON(t, server.App(), http.MethodPost, "/api/v1/payments/1/confirm", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/1/confirm", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer s3cret")
	resp, err := server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, server.App(), http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
