package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bank-transfer-reconciler/internal/matcher"
	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/internal/transition"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// ReconciliationService matches candidates of one batch and commits them
type ReconciliationService struct {
	repo   store.Repository
	engine *transition.Engine
	config *Config
	logger logger.Logger
}

// NewReconciliationService creates the service
func NewReconciliationService(repo store.Repository, engine *transition.Engine, config *Config, log logger.Logger) (*ReconciliationService, error) {
	if repo == nil || engine == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_service", nil, nil).
			WithSuggestion("provide a repository and a transition engine")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config, err)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &ReconciliationService{
		repo:   repo,
		engine: engine,
		config: config,
		logger: logger.OrGlobal(log).WithComponent("reconciler"),
	}, nil
}

// ReconcileRows reconciles operator rows as bank statement evidence
func (rs *ReconciliationService) ReconcileRows(ctx context.Context, rows []models.Row) *Report {
	report := NewReport(uuid.NewString(), models.SourceStatement, rs.config.Now())
	rs.reconcile(ctx, report, RowCandidates(rows), rows)
	return report
}

// ReconcileCandidates reconciles extracted candidates into report
func (rs *ReconciliationService) ReconcileCandidates(ctx context.Context, report *Report, candidates []models.TransactionCandidate) {
	rs.reconcile(ctx, report, candidates, nil)
}

// reconcile processes candidates in order. Each commit is remembered by the
// matcher so a later candidate with the same reference in this batch is a
// duplicate. No single failure stops the batch.
func (rs *ReconciliationService) reconcile(ctx context.Context, report *Report, candidates []models.TransactionCandidate, rows []models.Row) {
	start := time.Now()
	op := logger.NewOperationLogger("reconcile_batch", rs.logger).
		WithField("batch_id", report.BatchID).
		WithField("source", report.Source).
		WithField("candidates", len(candidates))
	defer func() { report.Duration = time.Since(start) }()

	op.Step("load records")
	matchConfig := matcher.DefaultMatchingConfig(report.Source)
	matchConfig.Now = rs.config.Now
	me := matcher.NewMatchingEngine(matchConfig)
	if err := rs.load(ctx, me, candidates); err != nil {
		op.Error(err, "Failed to load billing records")
		for i, c := range candidates {
			report.Add(rs.detail(rows, i, c, StatusError, err.Error()))
		}
		return
	}

	op.Step("match and commit")
	for i, c := range candidates {
		if ctx.Err() != nil {
			report.Add(rs.detail(rows, i, c, StatusError, ctx.Err().Error()))
			continue
		}
		report.Add(rs.process(ctx, me, report.Source, rows, i, c))
	}

	op.Success("Batch reconciled", logger.Fields{
		"matched":    report.Matched,
		"unmatched":  report.Unmatched,
		"duplicates": report.Duplicates,
		"errors":     report.Errors,
	})
}

// load indexes every record carrying one of the candidate codes and the
// payments already recorded for them. Records in every state are loaded so a
// replayed reference on a paid record is still a duplicate; the matcher only
// matches outstanding ones.
func (rs *ReconciliationService) load(ctx context.Context, me *matcher.MatchingEngine, candidates []models.TransactionCandidate) error {
	codes := uniqueCodes(candidates)
	if len(codes) == 0 {
		return nil
	}

	records, err := rs.repo.FindOutstandingBillingRecords(ctx, store.RecordFilter{Codes: codes})
	if err != nil {
		return errors.PersistenceError(errors.CodeReadFailed, "find_billing_records", err)
	}
	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	payments, err := rs.repo.ListPayments(ctx, ids)
	if err != nil {
		return errors.PersistenceError(errors.CodeReadFailed, "list_payments", err)
	}

	me.LoadRecords(records)
	me.LoadPayments(payments)
	return nil
}

func (rs *ReconciliationService) process(ctx context.Context, me *matcher.MatchingEngine, source models.PaymentSource, rows []models.Row, i int, c models.TransactionCandidate) Detail {
	result := me.Match(c)
	d := rs.detail(rows, i, c, "", "")
	if result.Record != nil {
		d.RecordID = result.Record.ID
	}

	switch result.Outcome {
	case matcher.OutcomeNoCode:
		d.Status, d.Message = StatusNoCode, reason(result)
		return d
	case matcher.OutcomeCodeNotFound:
		d.Status, d.Message = StatusCodeNotFound, reason(result)
		return d
	case matcher.OutcomeDuplicate:
		d.Status, d.Message = StatusAlreadyProcessed, reason(result)
		return d
	}

	commit, err := rs.engine.Commit(ctx, result, source)
	switch {
	case err == nil:
		me.Remember(result.Record.ID, result.Reference)
		me.Refresh(commit.Record)
		d.Status = StatusSuccess
		d.PaymentID = commit.Payment.ID
		if !commit.Advanced {
			d.Message = "pending verification"
		}
	case errors.IsCategory(err, errors.CategoryDuplicate):
		me.Remember(result.Record.ID, result.Reference)
		d.Status, d.Message = StatusAlreadyProcessed, "reference already recorded"
	case errors.IsCategory(err, errors.CategoryNotFound):
		d.Status, d.Message = StatusCodeNotFound, err.Error()
	case errors.IsCategory(err, errors.CategoryValidation):
		d.Status, d.Message = StatusNoCode, err.Error()
	default:
		rs.logger.WithError(err).WithFields(logger.Fields{
			"code":      d.Code,
			"reference": result.Reference,
		}).Error("Commit failed")
		d.Status, d.Message = StatusError, err.Error()
	}
	return d
}

func (rs *ReconciliationService) detail(rows []models.Row, i int, c models.TransactionCandidate, status DetailStatus, message string) Detail {
	d := Detail{
		Candidate: c,
		Code:      models.NormalizeCode(c.Code),
		Status:    status,
		Message:   message,
	}
	if i < len(rows) {
		row := rows[i]
		d.Row = &row
	}
	return d
}

func reason(result *matcher.MatchResult) string {
	if len(result.Reasons) == 0 {
		return ""
	}
	return result.Reasons[0]
}
