// Package matcher resolves transaction candidates to billing records.
//
// Matching is exact code equality, case-insensitive, with no fuzzy fallback.
// The engine is a pure function of its inputs: it reads the record index and
// the reference set and never touches the store.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
)

// Outcome classifies a candidate
type Outcome string

const (
	// OutcomeMatched means exactly one record carries the code and the
	// reference is new for it.
	OutcomeMatched Outcome = "matched"
	// OutcomeDuplicate means the reference is already recorded for the record.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNoCode means the candidate has no usable code or amount.
	OutcomeNoCode Outcome = "no_code"
	// OutcomeCodeNotFound means no outstanding record carries the code.
	OutcomeCodeNotFound Outcome = "code_not_found"
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	return string(o)
}

// MatchResult is the resolution of one candidate
type MatchResult struct {
	Candidate models.TransactionCandidate
	Record    *models.BillingRecord
	Outcome   Outcome
	Reference string
	Reasons   []string
}

// IsMatched reports whether the candidate can be committed
func (mr *MatchResult) IsMatched() bool {
	return mr.Outcome == OutcomeMatched
}

// MatchSummary counts outcomes over a set of results
type MatchSummary struct {
	Total        int
	Matched      int
	Duplicates   int
	NoCode       int
	CodeNotFound int
	AmountTotal  decimal.Decimal
}

// MatchingEngine resolves candidates against indexed records and references
type MatchingEngine struct {
	Config      *MatchingConfig
	RecordIndex *RecordIndex
	References  *ReferenceSet
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig(models.SourceStatement)
	}
	return &MatchingEngine{
		Config:      config,
		RecordIndex: NewRecordIndex(nil),
		References:  NewReferenceSet(nil),
	}
}

// LoadRecords loads billing records into the engine and builds the code index
func (me *MatchingEngine) LoadRecords(records []*models.BillingRecord) {
	me.RecordIndex = NewRecordIndex(records)
}

// LoadPayments loads existing payments as known references
func (me *MatchingEngine) LoadPayments(payments []*models.Payment) {
	me.References = NewReferenceSet(payments)
}

// Remember records a reference committed during the current batch so later
// candidates in the same batch see it.
func (me *MatchingEngine) Remember(recordID uint, reference string) {
	me.References.Add(recordID, reference)
}

// Refresh replaces the indexed copy of a record after a commit changed it
func (me *MatchingEngine) Refresh(record *models.BillingRecord) {
	me.RecordIndex.Replace(record)
}

// Match resolves a single candidate
func (me *MatchingEngine) Match(c models.TransactionCandidate) *MatchResult {
	result := &MatchResult{Candidate: c}

	if !c.HasCode() {
		result.Outcome = OutcomeNoCode
		result.Reasons = append(result.Reasons, "no transfer code")
		return result
	}
	if !c.HasAmount() {
		result.Outcome = OutcomeNoCode
		result.Reasons = append(result.Reasons, "no amount")
		return result
	}
	if c.Amount.LessThan(me.Config.MinAmount) {
		result.Outcome = OutcomeNoCode
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("amount %s below %s minimum %s", c.Amount, me.Config.Source, me.Config.MinAmount))
		return result
	}

	record, ok := me.RecordIndex.Lookup(c.Code)
	if !ok {
		result.Outcome = OutcomeCodeNotFound
		result.Reasons = append(result.Reasons, fmt.Sprintf("no billing record with code %s", models.NormalizeCode(c.Code)))
		return result
	}

	reference := c.BankReference()
	if me.References.Contains(record.ID, reference) {
		result.Record = record
		result.Reference = reference
		result.Outcome = OutcomeDuplicate
		result.Reasons = append(result.Reasons, "reference already recorded")
		return result
	}

	// An active Paid record is not outstanding. Expired ones renew.
	if record.EffectiveState(me.Config.now()) == models.StatePaid {
		result.Outcome = OutcomeCodeNotFound
		result.Reasons = append(result.Reasons, fmt.Sprintf("billing record %s is already paid", record.Code))
		return result
	}

	result.Record = record
	result.Reference = reference

	result.Outcome = OutcomeMatched
	result.Reasons = append(result.Reasons, "exact code match")
	return result
}

// MatchAll resolves candidates in order without remembering matches between
// them. Use Match and Remember when commits happen between candidates.
func (me *MatchingEngine) MatchAll(candidates []models.TransactionCandidate) []*MatchResult {
	results := make([]*MatchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, me.Match(c))
	}
	return results
}

// Match is the pure form of the engine: candidates resolved against records
// and existing payments under config.
func Match(config *MatchingConfig, candidates []models.TransactionCandidate, records []*models.BillingRecord, payments []*models.Payment) []*MatchResult {
	me := NewMatchingEngine(config)
	me.LoadRecords(records)
	me.LoadPayments(payments)
	return me.MatchAll(candidates)
}

// Summarize counts outcomes
func Summarize(results []*MatchResult) MatchSummary {
	s := MatchSummary{Total: len(results), AmountTotal: decimal.Zero}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeMatched:
			s.Matched++
			if r.Candidate.Amount != nil {
				s.AmountTotal = s.AmountTotal.Add(*r.Candidate.Amount)
			}
		case OutcomeDuplicate:
			s.Duplicates++
		case OutcomeNoCode:
			s.NoCode++
		case OutcomeCodeNotFound:
			s.CodeNotFound++
		}
	}
	return s
}
