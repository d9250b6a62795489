package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/ocr"
	"bank-transfer-reconciler/internal/parsers"
	"bank-transfer-reconciler/internal/store/storetest"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

type fakeOCR struct {
	text string
}

func (f fakeOCR) ExtractText(_ context.Context, doc ocr.Document, _ []string) (string, error) {
	if f.text == "" {
		return "", errors.ExtractionError(errors.CodeUnreadableDocument, doc.Name, nil)
	}
	return f.text, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeArchive) Store(_ context.Context, batchID, filename, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "evidence/" + batchID + "/" + filename
	f.keys = append(f.keys, key)
	return key, nil
}

func TestReconcileStatementDocument(t *testing.T) {
	service, repo, _ := newService(t)
	ctx := context.Background()
	user := storetest.SeedUser(t, repo, models.RoleUser)
	record := storetest.SeedRecord(t, repo, user.ID, models.KindProject, "MOD-1234", 150)

	arch := &fakeArchive{}
	orch, err := NewReconciliationOrchestrator(service, ocr.NewRouter(nil), arch)
	require.NoError(t, err)

	report, err := orch.ReconcileDocument(ctx, DocumentRequest{
		Name:   "statement.txt",
		Data:   []byte("RELEVE DE COMPTE\n15/03/2024 VIREMENT 150,00 MAD MOD-1234\n"),
		Source: models.SourceStatement,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, "statement.txt", report.Document)
	assert.Equal(t, "evidence/"+report.BatchID+"/statement.txt", report.ArchiveKey)
	require.Len(t, report.Details, 1)
	assert.Equal(t, "MOD-1234", report.Details[0].Code)
	assert.Equal(t, "2024-03-15", report.Details[0].Candidate.Date)

	stored, err := repo.GetBillingRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaid, stored.PaymentState)
}

func TestReconcileDatelessStatementOnAnotherDay(t *testing.T) {
	service, repo, _ := newService(t)
	ctx := context.Background()
	user := storetest.SeedUser(t, repo, models.RoleUser)
	record := storetest.SeedRecord(t, repo, user.ID, models.KindProject, "MOD-1234", 150)

	orch, err := NewReconciliationOrchestrator(service, nil, nil)
	require.NoError(t, err)
	req := DocumentRequest{
		Name:   "statement.txt",
		Data:   []byte("VIREMENT RECU 150,00 MAD MOD-1234\n"),
		Source: models.SourceStatement,
	}

	first, err := orch.ReconcileDocument(ctx, req)
	require.NoError(t, err)
	require.Equal(t, []DetailStatus{StatusSuccess}, statuses(first))
	assert.True(t, first.Details[0].Candidate.DateDefaulted)

	nextDay := fixedNow.Add(24 * time.Hour)
	service.config.Now = func() time.Time { return nextDay }

	second, err := orch.ReconcileDocument(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []DetailStatus{StatusAlreadyProcessed}, statuses(second))
	assert.Equal(t, nextDay.Format(models.DateLayout), second.Details[0].Candidate.Date)

	payments, err := repo.ListPayments(ctx, []uint{record.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "Payment MOD-1234", payments[0].BankReference)
}

func TestReconcileReceiptDocument(t *testing.T) {
	service, repo, _ := newService(t)
	ctx := context.Background()
	user := storetest.SeedUser(t, repo, models.RoleUser)
	record := storetest.SeedRecord(t, repo, user.ID, models.KindSubscription, "MOD12345678", 80)

	orch, err := NewReconciliationOrchestrator(service, ocr.NewRouter(fakeOCR{
		text: "RECU DE VIREMENT\n15/03/2024\nMOD12345678\n80,00 MAD",
	}), nil)
	require.NoError(t, err)

	report, err := orch.ReconcileDocument(ctx, DocumentRequest{
		Name:   "receipt.pdf",
		Data:   []byte("%PDF-1.4\n%scan"),
		Source: models.SourceReceipt,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Matched)
	assert.Equal(t, "pending verification", report.Details[0].Message)

	stored, err := repo.GetBillingRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNotPaid, stored.PaymentState)

	payment, err := repo.GetPayment(ctx, report.Details[0].PaymentID)
	require.NoError(t, err)
	assert.False(t, payment.Verified)
}

func TestReconcileDocumentFailures(t *testing.T) {
	service, _, _ := newService(t)
	orch, err := NewReconciliationOrchestrator(service, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		req      DocumentRequest
		category errors.ErrorCategory
	}{
		{"empty", DocumentRequest{Name: "a.txt", Source: models.SourceStatement}, errors.CategoryExtraction},
		{"binary without ocr", DocumentRequest{Name: "a.pdf", Data: []byte("%PDF-1.4\n"), Source: models.SourceStatement}, errors.CategoryExtraction},
		{"bad source", DocumentRequest{Name: "a.txt", Data: []byte("x"), Source: "fax"}, errors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := orch.ReconcileDocument(context.Background(), tt.req)
			assert.Nil(t, report)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestReconcileDocumentsInParallel(t *testing.T) {
	service, repo, _ := newService(t)
	user := storetest.SeedUser(t, repo, models.RoleUser)

	var reqs []DocumentRequest
	for i := 1; i <= 4; i++ {
		code := fmt.Sprintf("MOD-%04d", i)
		storetest.SeedRecord(t, repo, user.ID, models.KindProject, code, 200)
		reqs = append(reqs, DocumentRequest{
			Name:   fmt.Sprintf("statement-%d.txt", i),
			Data:   []byte(fmt.Sprintf("1%d/03/2024 VIREMENT 200,00 MAD %s\n", i, code)),
			Source: models.SourceStatement,
		})
	}
	reqs = append(reqs, DocumentRequest{Name: "broken.pdf", Data: []byte("%PDF-1.4\n"), Source: models.SourceStatement})

	orch, err := NewReconciliationOrchestrator(service, nil, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []ReconciliationProgress
	orch.AddProgressCallback(func(p ReconciliationProgress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	})

	outcomes := orch.ReconcileDocuments(context.Background(), reqs)
	require.Len(t, outcomes, 5)
	for i, o := range outcomes[:4] {
		require.NoError(t, o.Err, o.Name)
		assert.Equal(t, reqs[i].Name, o.Name)
		assert.Equal(t, 1, o.Report.Matched, o.Name)
	}
	assert.Error(t, outcomes[4].Err)
	assert.Nil(t, outcomes[4].Report)

	require.Len(t, seen, 5)
	var last ReconciliationProgress
	for _, p := range seen {
		if p.CompletedDocuments > last.CompletedDocuments {
			last = p
		}
	}
	assert.Equal(t, 5, last.CompletedDocuments)
	assert.Equal(t, 1, last.FailedDocuments)
	assert.InDelta(t, 100.0, last.PercentComplete, 0.001)
}

func TestReconcileRowsFile(t *testing.T) {
	service, repo, _ := newService(t)
	user := storetest.SeedUser(t, repo, models.RoleUser)
	storetest.SeedRecord(t, repo, user.ID, models.KindProject, "MOD-1234", 300)

	path := filepath.Join(t.TempDir(), "rows.csv")
	content := strings.Join([]string{
		"date,amount,description,senderName",
		"15/03/2024,300.00,Payment MOD-1234,ACME",
		"not a date,300.00,Payment MOD-1234,ACME",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	parser, err := parsers.NewRowParser(nil, logger.Discard())
	require.NoError(t, err)
	orch, err := NewReconciliationOrchestrator(service, nil, nil)
	require.NoError(t, err)

	report, stats, err := orch.ReconcileRowsFile(context.Background(), path, parser)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, path, report.Document)
}

func TestNewReconciliationOrchestratorRequiresService(t *testing.T) {
	_, err := NewReconciliationOrchestrator(nil, nil, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
