// Package reconciler runs reconciliation batches.
//
// A batch is one uploaded document or one submission of pre-extracted rows.
// Candidates of a batch are matched and committed sequentially in extraction
// order, because a later candidate's duplicate check depends on what earlier
// ones committed. Independent documents run in parallel.
//
// Example usage:
//
//	service, _ := reconciler.NewReconciliationService(repo, engine, nil, log)
//	orchestrator, _ := reconciler.NewReconciliationOrchestrator(service, ocr.NewRouter(gemini), archive.Noop{})
//	report, err := orchestrator.ReconcileDocument(ctx, reconciler.DocumentRequest{
//		Name:   "statement.pdf",
//		Data:   data,
//		Source: models.SourceStatement,
//	})
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"bank-transfer-reconciler/internal/archive"
	"bank-transfer-reconciler/internal/extractor"
	"bank-transfer-reconciler/internal/ocr"
	"bank-transfer-reconciler/internal/parsers"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// ReconciliationProgress tracks a multi-document run
type ReconciliationProgress struct {
	TotalDocuments     int           `json:"total_documents"`
	CompletedDocuments int           `json:"completed_documents"`
	FailedDocuments    int           `json:"failed_documents"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(ReconciliationProgress)

// ReconciliationOrchestrator turns documents into batches: archive, text
// extraction, candidate extraction, then reconciliation.
type ReconciliationOrchestrator struct {
	service *ReconciliationService
	text    ocr.TextExtractor
	archive archive.Archive
	logger  logger.Logger

	progressCallbacks []ProgressCallback
	progress          ReconciliationProgress
	progressMutex     sync.Mutex
}

// NewReconciliationOrchestrator creates a new orchestrator. A nil archive
// disables archiving.
func NewReconciliationOrchestrator(service *ReconciliationService, text ocr.TextExtractor, arch archive.Archive) (*ReconciliationOrchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_service", nil, nil).
			WithSuggestion("provide a valid ReconciliationService instance")
	}
	if text == nil {
		text = ocr.NewRouter(nil)
	}
	if arch == nil {
		arch = archive.Noop{}
	}
	return &ReconciliationOrchestrator{
		service: service,
		text:    text,
		archive: arch,
		logger:  service.logger.WithComponent("orchestrator"),
	}, nil
}

// Service returns the underlying reconciliation service
func (ro *ReconciliationOrchestrator) Service() *ReconciliationService {
	return ro.service
}

// AddProgressCallback adds a progress callback function
func (ro *ReconciliationOrchestrator) AddProgressCallback(callback ProgressCallback) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()
	ro.progressCallbacks = append(ro.progressCallbacks, callback)
}

// ReconcileDocument reconciles one document. Extraction failure aborts the
// document and is returned; everything after extraction is reported per
// candidate.
func (ro *ReconciliationOrchestrator) ReconcileDocument(ctx context.Context, req DocumentRequest) (*Report, error) {
	if !req.Source.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidArgument, "source", req.Source, nil).
			WithSuggestion("use statement or receipt")
	}
	if len(req.Data) == 0 {
		return nil, errors.ExtractionError(errors.CodeEmptyDocument, req.Name, nil)
	}

	report := NewReport(uuid.NewString(), req.Source, ro.service.config.Now())
	report.Document = req.Name
	log := ro.logger.WithFields(logger.Fields{"batch_id": report.BatchID, "document": req.Name})

	doc := ocr.NewDocument(req.Name, req.Data)
	key, err := ro.archive.Store(ctx, report.BatchID, req.Name, doc.MIMEType, req.Data)
	if err != nil {
		log.WithError(err).Warn("Failed to archive document")
	}
	report.ArchiveKey = key

	text, err := ro.text.ExtractText(ctx, doc, ro.service.config.LanguageHints)
	if err != nil {
		log.WithError(err).Warn("Text extraction failed")
		return nil, errors.WrapIfNeeded(err, errors.CategoryExtraction, errors.CodeUnreadableDocument, "text extraction failed")
	}

	ext := extractor.New(extractor.FormatFor(req.Source), &extractor.Config{
		Window: extractor.DefaultWindow,
		Now:    ro.service.config.Now,
		Logger: log,
	})
	candidates := ext.ExtractText(text)
	log.WithField("candidates", len(candidates)).Debug("Candidates extracted")

	ro.service.ReconcileCandidates(ctx, report, candidates)
	return report, nil
}

// ReconcileDocuments reconciles independent documents in parallel. Outcomes
// are returned in request order.
func (ro *ReconciliationOrchestrator) ReconcileDocuments(ctx context.Context, reqs []DocumentRequest) []DocumentOutcome {
	outcomes := make([]DocumentOutcome, len(reqs))
	ro.startProgress(len(reqs))

	p := pool.New().WithMaxGoroutines(ro.service.config.MaxConcurrentDocuments)
	for i, req := range reqs {
		p.Go(func() {
			report, err := ro.ReconcileDocument(ctx, req)
			outcomes[i] = DocumentOutcome{Name: req.Name, Report: report, Err: err}
			ro.documentDone(req.Name, err)
		})
	}
	p.Wait()

	return outcomes
}

// ReconcileRowsFile parses a row file and reconciles the valid rows. Rows that
// fail to parse are counted in the returned stats.
func (ro *ReconciliationOrchestrator) ReconcileRowsFile(ctx context.Context, path string, parser *parsers.RowParser) (*Report, *parsers.ParseStats, error) {
	rows, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, stats, err
	}
	report := ro.service.ReconcileRows(ctx, rows)
	report.Document = path
	return report, stats, nil
}

func (ro *ReconciliationOrchestrator) startProgress(total int) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()
	ro.progress = ReconciliationProgress{
		TotalDocuments: total,
		CurrentStep:    "reconciling documents",
		StartTime:      time.Now(),
	}
}

func (ro *ReconciliationOrchestrator) documentDone(name string, err error) {
	ro.progressMutex.Lock()
	ro.progress.CompletedDocuments++
	if err != nil {
		ro.progress.FailedDocuments++
	}
	ro.progress.CurrentStep = name
	ro.progress.ElapsedTime = time.Since(ro.progress.StartTime)
	if ro.progress.TotalDocuments > 0 {
		ro.progress.PercentComplete = float64(ro.progress.CompletedDocuments) / float64(ro.progress.TotalDocuments) * 100
	}
	snapshot := ro.progress
	callbacks := append([]ProgressCallback(nil), ro.progressCallbacks...)
	ro.progressMutex.Unlock()

	for _, cb := range callbacks {
		cb(snapshot)
	}
}
